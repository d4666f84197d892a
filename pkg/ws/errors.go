package ws

import "github.com/tokmz/qim/pkg/errors"

// 连接相关错误
var (
	ErrTooManyConnections = errors.New(6001, 503, "ws: too many connections", nil)
	ErrSessionExists      = errors.New(6002, 500, "ws: session id already exists", nil)
	ErrConnectionClosed   = errors.New(6003, 410, "ws: connection closed", nil)
	ErrChannelFull        = errors.New(6004, 503, "ws: send queue full", nil)
)

// 帧与协议相关错误
var (
	ErrInvalidFrame       = errors.New(6101, 400, "ws: invalid frame", nil)
	ErrUnknownCommand     = errors.New(6102, 400, "ws: unknown command", nil)
	ErrNotConnected       = errors.New(6103, 400, "ws: CONNECT required", nil)
	ErrAlreadyConnected   = errors.New(6104, 400, "ws: session already connected", nil)
	ErrInvalidDestination = errors.New(6105, 400, "ws: invalid destination", nil)
	ErrNotSubscribed      = errors.New(6106, 400, "ws: not subscribed", nil)
)

// 鉴权相关错误
var (
	ErrUnauthenticated = errors.New(6201, 401, "ws: authentication required", nil)
	ErrForbidden       = errors.New(6202, 403, "ws: destination forbidden", nil)
)

// 分发相关错误
var (
	ErrHandlerNotFound = errors.New(6301, 404, "ws: no handler for destination", nil)
	ErrHandlerExists   = errors.New(6302, 500, "ws: handler already exists", nil)
	ErrRouterFrozen    = errors.New(6303, 500, "ws: dispatcher is frozen", nil)
)

// ErrInvalidConfig 配置错误
var ErrInvalidConfig = errors.New(6401, 500, "ws: invalid config", nil)
