package store

import "github.com/tokmz/qim/pkg/errors"

var (
	ErrNotFound  = errors.New(4001, 404, "记录不存在", nil)
	ErrDuplicate = errors.New(4002, 409, "记录已存在", nil)
	ErrStore     = errors.New(4003, 500, "存储操作失败", nil)
)
