package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsByCode(t *testing.T) {
	wrapped := ErrNotFound.WithMessage("会话不存在")
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrForbidden))
	assert.Equal(t, "资源不存在", ErrNotFound.Message, "预定义错误不应被修改")
}

func TestErrorUnwrapAndFrom(t *testing.T) {
	cause := fmt.Errorf("db down")
	err := fmt.Errorf("load: %w", ErrServer.WithError(cause))

	assert.True(t, Is(err, cause))

	e := From(err)
	if assert.NotNil(t, e) {
		assert.Equal(t, 1000, e.Code)
		assert.Equal(t, 500, e.HttpCode)
		assert.Equal(t, "服务器异常: db down", e.Error())
	}
	assert.Nil(t, From(cause))
}

func TestNewDefaultsHttpCode(t *testing.T) {
	e := New(42, 0, "ok", nil)
	assert.Equal(t, 200, e.HttpCode)
}
