package auth

import "github.com/tokmz/qim/pkg/errors"

var (
	ErrInvalidCredential = errors.New(2001, 401, "凭证无效", nil)
	ErrUnknownSubject    = errors.New(2002, 401, "令牌主体不存在", nil)
)
