package errors

import "net/http"

// 通用错误码 1000 段，各包在自己的号段内定义业务错误
var (
	ErrServer          = New(1000, http.StatusInternalServerError, "服务器异常", nil)
	ErrBadRequest      = New(1001, http.StatusBadRequest, "请求异常", nil)
	ErrUnauthorized    = New(1002, http.StatusUnauthorized, "授权异常", nil)
	ErrForbidden       = New(1003, http.StatusForbidden, "禁止访问", nil)
	ErrNotFound        = New(1004, http.StatusNotFound, "资源不存在", nil)
	ErrTooManyRequests = New(1005, http.StatusTooManyRequests, "请求过于频繁", nil)
)
