package chat

import "github.com/tokmz/qim/pkg/errors"

var (
	ErrNotParticipant      = errors.New(5001, 403, "不是会话成员", nil)
	ErrNotSender           = errors.New(5002, 403, "只有发送者可以修改消息", nil)
	ErrInvalidConversation = errors.New(5003, 400, "会话参数无效", nil)
	ErrEmptyMessage        = errors.New(5004, 400, "消息内容为空", nil)
	ErrNotAdmin            = errors.New(5005, 403, "需要会话管理员权限", nil)
)
