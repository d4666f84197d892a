package api

import (
	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/chat"
	"github.com/tokmz/qim/internal/store"
)

type settingsURI struct {
	ConversationID string `uri:"conversationId"`
}

type settingsRequest struct {
	ConversationID string `uri:"conversationId"`
	chat.SettingsInput
}

func (h *Handler) registerSettings(r *qim.RouterGroup) {
	g := r.Group("/user-conversations")
	qim.Handle[settingsURI, store.UserConversation](g.GET, "/:conversationId", h.settings)
	qim.Handle[settingsRequest, store.UserConversation](g.PUT, "/:conversationId", h.updateSettings)
	qim.Handle[settingsURI, store.UserConversation](g.PUT, "/:conversationId/read", h.markConversationRead)
}

func (h *Handler) settings(c *qim.Context, req *settingsURI) (*store.UserConversation, error) {
	return h.chat.Settings(c.RequestContext(), principal(c), req.ConversationID)
}

func (h *Handler) updateSettings(c *qim.Context, req *settingsRequest) (*store.UserConversation, error) {
	return h.chat.UpdateSettings(c.RequestContext(), principal(c), req.ConversationID, req.SettingsInput)
}

func (h *Handler) markConversationRead(c *qim.Context, req *settingsURI) (*store.UserConversation, error) {
	return h.chat.MarkConversationRead(c.RequestContext(), principal(c), req.ConversationID)
}
