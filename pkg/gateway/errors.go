package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Op names the backend operation that failed
type Op string

const (
	OpUpload Op = "upload"
	OpCreate Op = "create"
	OpRecall Op = "recall"
	OpChat   Op = "chat"
	OpHealth Op = "health"
)

var (
	ErrTimeout          = errors.New("请求超时，请检查网络连接或稍后重试")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

var opPrefixes = map[Op]string{
	OpUpload: "文件上传失败",
	OpCreate: "知识库创建失败",
	OpRecall: "召回测试失败",
	OpChat:   "对话失败",
	OpHealth: "后端服务健康检查失败",
}

// Error is the uniform failure of a gateway call. It wraps either a transport
// error (including ErrTimeout) or ErrUnexpectedStatus with the response body.
type Error struct {
	Op         Op
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", opPrefixes[e.Op], e.detail())
}

func (e *Error) detail() string {
	if errors.Is(e.Err, ErrUnexpectedStatus) {
		if body := strings.TrimSpace(e.Body); body != "" {
			return body
		}
		if text := http.StatusText(e.StatusCode); text != "" {
			return text
		}
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// IsOp reports whether err is a gateway failure of the given operation
func IsOp(err error, op Op) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Op == op
	}
	return false
}

// IsTimeout reports whether err is a gateway timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
