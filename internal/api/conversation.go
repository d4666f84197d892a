package api

import (
	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/store"
)

type pageQuery struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

type conversationURI struct {
	ID string `uri:"id"`
}

type renameRequest struct {
	ID   string `uri:"id"`
	Name string `json:"name" binding:"required"`
}

// LeaveResponse 退出会话结果，Deleted 表示会话被整体删除
type LeaveResponse struct {
	ConversationID string `json:"conversationId"`
	Deleted        bool   `json:"deleted"`
}

func (h *Handler) registerConversations(r *qim.RouterGroup) {
	g := r.Group("/conversations")
	qim.Handle[chat.CreateInput, store.Conversation](g.POST, "", h.createConversation)
	qim.Handle[pageQuery, chat.ConversationList](g.GET, "", h.listConversations)
	qim.Handle[conversationURI, store.Conversation](g.GET, "/:id", h.getConversation)
	qim.Handle[renameRequest, store.Conversation](g.PUT, "/:id", h.renameConversation)
	qim.Handle[conversationURI, LeaveResponse](g.DELETE, "/:id", h.leaveConversation)
}

func (h *Handler) createConversation(c *qim.Context, req *chat.CreateInput) (*store.Conversation, error) {
	return h.chat.CreateConversation(c.RequestContext(), principal(c), *req)
}

func (h *Handler) listConversations(c *qim.Context, req *pageQuery) (*chat.ConversationList, error) {
	return h.chat.Conversations(c.RequestContext(), principal(c), req.Page, req.Size)
}

func (h *Handler) getConversation(c *qim.Context, req *conversationURI) (*store.Conversation, error) {
	return h.chat.Conversation(c.RequestContext(), principal(c), req.ID)
}

func (h *Handler) renameConversation(c *qim.Context, req *renameRequest) (*store.Conversation, error) {
	return h.chat.RenameConversation(c.RequestContext(), principal(c), req.ID, req.Name)
}

func (h *Handler) leaveConversation(c *qim.Context, req *conversationURI) (*LeaveResponse, error) {
	deleted, err := h.chat.LeaveConversation(c.RequestContext(), principal(c), req.ID)
	if err != nil {
		return nil, err
	}
	return &LeaveResponse{ConversationID: req.ID, Deleted: deleted}, nil
}
