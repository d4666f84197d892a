package ws

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tokmz/qim/pkg/errors"
)

// Command 帧命令
type Command string

// 客户端命令
const (
	CommandConnect     Command = "CONNECT"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandDisconnect  Command = "DISCONNECT"
)

// 服务端命令
const (
	CommandConnected Command = "CONNECTED"
	CommandMessage   Command = "MESSAGE"
	CommandReceipt   Command = "RECEIPT"
	CommandError     Command = "ERROR"
)

// 常用头部
const (
	HeaderAuthorization = "Authorization"
	HeaderSession       = "session"
	HeaderUserName      = "user-name"
	HeaderSubscription  = "id"
	HeaderReceiptID     = "receipt-id"
	HeaderMessage       = "message"
	HeaderCode          = "code"
	HeaderContentType   = "content-type"
)

// Frame 线路帧，JSON 文本编码
type Frame struct {
	Command     Command           `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Receipt     string            `json:"receipt,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// DecodeFrame 解析客户端帧
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ErrInvalidFrame.WithError(err)
	}
	if f.Command == "" {
		return nil, ErrInvalidFrame.WithMessage("ws: missing command")
	}
	f.Command = Command(strings.ToUpper(string(f.Command)))
	return &f, nil
}

// Encode 编码为线路字节
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Header 按名称查找头部，名称大小写不敏感
func (f *Frame) Header(name string) (string, bool) {
	if v, ok := f.Headers[name]; ok {
		return v, true
	}
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader 设置头部
func (f *Frame) SetHeader(name, value string) *Frame {
	if f.Headers == nil {
		f.Headers = make(map[string]string, 2)
	}
	f.Headers[name] = value
	return f
}

// NewConnectedFrame 握手成功帧
func NewConnectedFrame(sessionID string, p *Principal) *Frame {
	f := &Frame{Command: CommandConnected}
	f.SetHeader(HeaderSession, sessionID)
	if p != nil {
		f.SetHeader(HeaderUserName, p.Username)
	}
	return f
}

// NewReceiptFrame 回执帧
func NewReceiptFrame(receipt string) *Frame {
	return (&Frame{Command: CommandReceipt}).SetHeader(HeaderReceiptID, receipt)
}

// NewErrorFrame 错误帧，携带 message 与 code 头部
func NewErrorFrame(err error, receipt string) *Frame {
	f := &Frame{Command: CommandError}
	code := errors.ErrServer.Code
	msg := errors.ErrServer.Message
	if e := errors.From(err); e != nil {
		code = e.Code
		msg = e.Message
	}
	f.SetHeader(HeaderMessage, msg)
	f.SetHeader(HeaderCode, strconv.Itoa(code))
	if receipt != "" {
		f.SetHeader(HeaderReceiptID, receipt)
	}
	return f
}

// encodeMessageFrame 把信封包装成 MESSAGE 帧
// 同一次发布只编码一次，所有订阅者共享同一份字节
func encodeMessageFrame(dest Destination, payload []byte) ([]byte, error) {
	f := &Frame{
		Command:     CommandMessage,
		Destination: dest.ExternalPath(),
		Headers:     map[string]string{HeaderContentType: "application/json"},
		Body:        payload,
	}
	return f.Encode()
}
