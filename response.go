package qim

import "net/http"

// Response 统一响应体
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Success 成功响应，code 固定 200
func Success(data any) *Response {
	return &Response{Code: http.StatusOK, Data: data, Message: "success"}
}

// Fail 失败响应
func Fail(code int, message string) *Response {
	return &Response{Code: code, Message: message}
}

// PageResp 分页数据
type PageResp struct {
	List  any   `json:"list"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// NewPageResp list 为 nil 时输出空数组而不是 null
func NewPageResp(list any, total int64, page, size int) *PageResp {
	if list == nil {
		list = []any{}
	}
	return &PageResp{List: list, Total: total, Page: page, Size: size}
}
