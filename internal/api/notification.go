package api

import (
	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/chat"
)

type notificationQuery struct {
	UnreadOnly bool `form:"unreadOnly"`
	Page       int  `form:"page"`
	Size       int  `form:"size"`
}

type notificationURI struct {
	ID string `uri:"id"`
}

// CountResponse 计数结果
type CountResponse struct {
	Count int64 `json:"count"`
}

func (h *Handler) registerNotifications(r *qim.RouterGroup) {
	g := r.Group("/notifications")
	qim.Handle[notificationQuery, chat.NotificationList](g.GET, "", h.notifications)
	qim.HandleOnly[CountResponse](g.GET, "/count", h.unreadCount)
	qim.Handle0[notificationURI](g.PUT, "/:id/read", h.markNotificationRead)
	qim.HandleOnly[CountResponse](g.PUT, "/read-all", h.markAllNotificationsRead)
}

func (h *Handler) notifications(c *qim.Context, req *notificationQuery) (*chat.NotificationList, error) {
	return h.chat.Notifications(c.RequestContext(), principal(c), req.UnreadOnly, req.Page, req.Size)
}

func (h *Handler) unreadCount(c *qim.Context) (*CountResponse, error) {
	n, err := h.chat.UnreadNotifications(c.RequestContext(), principal(c))
	if err != nil {
		return nil, err
	}
	return &CountResponse{Count: n}, nil
}

func (h *Handler) markNotificationRead(c *qim.Context, req *notificationURI) error {
	return h.chat.MarkNotificationRead(c.RequestContext(), principal(c), req.ID)
}

func (h *Handler) markAllNotificationsRead(c *qim.Context) (*CountResponse, error) {
	n, err := h.chat.MarkAllNotificationsRead(c.RequestContext(), principal(c))
	if err != nil {
		return nil, err
	}
	return &CountResponse{Count: n}, nil
}
