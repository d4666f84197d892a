package ws

import "slices"

// Principal 已认证身份，挂到会话后不再修改
type Principal struct {
	UserID      string
	Username    string
	Authorities []string
}

// HasAuthority 是否拥有指定权限
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Authorities, authority)
}

// SessionState 会话状态
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateAnonymous
	StateDisconnected
)

// String 状态名，同时作为观察日志里的 transition 字段
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}
