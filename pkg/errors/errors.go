package errors

import (
	stderrors "errors"
	"net/http"
)

// Error 业务错误，HTTP 与 WebSocket 两端共用
// Code 为业务码，HttpCode 只在 HTTP 响应中使用
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	HttpCode int    `json:"-"`
	Err      error  `json:"-"`
}

// New httpCode 为 0 时按 200 处理
func New(code, httpCode int, message string, err error) *Error {
	if httpCode == 0 {
		httpCode = http.StatusOK
	}
	return &Error{Code: code, Message: message, HttpCode: httpCode, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同为 *Error 时按 Code 比较，否则沿原始错误链比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return stderrors.Is(e.Err, target)
}

// Clone 复制一份，预定义错误保持不变
func (e *Error) Clone() *Error {
	c := *e
	return &c
}

// WithError 返回挂上原始错误的副本
func (e *Error) WithError(err error) *Error {
	c := e.Clone()
	c.Err = err
	return c
}

// WithMessage 返回替换了提示信息的副本
func (e *Error) WithMessage(message string) *Error {
	c := e.Clone()
	c.Message = message
	return c
}

// From 取出错误链中的 *Error，没有时返回 nil
func From(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

func As(err error, target any) bool { return stderrors.As(err, target) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
