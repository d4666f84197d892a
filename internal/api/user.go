package api

import (
	"github.com/tokmz/qim"
	"github.com/tokmz/qim/internal/store"
)

func (h *Handler) registerUsers(r *qim.RouterGroup) {
	qim.HandleOnly[store.User](r.GET, "/users/me", h.me)
}

// me 当前登录用户资料
func (h *Handler) me(c *qim.Context) (*store.User, error) {
	return h.users.FindUser(c.RequestContext(), principal(c))
}
