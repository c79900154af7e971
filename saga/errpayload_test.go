package saga

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cardDeclinedError struct {
	OrderID int64
}

func (e *cardDeclinedError) Error() string {
	return fmt.Sprintf("card declined for order %d", e.OrderID)
}

// TestSerializeError 测试错误序列化
func TestSerializeError(t *testing.T) {
	payload := SerializeError(&cardDeclinedError{OrderID: 7})
	require.NotNil(t, payload)

	assert.Equal(t, "cardDeclinedError", payload.Type)
	assert.Equal(t, "card declined for order 7", payload.Message)
	assert.Equal(t, "sagaflow/saga", payload.Module)
	assert.NotEmpty(t, payload.Traceback)
}

// TestSerializeError_PlainError 普通 errors.New 错误
func TestSerializeError_PlainError(t *testing.T) {
	payload := SerializeError(errors.New("boom"))
	require.NotNil(t, payload)

	assert.NotEmpty(t, payload.Type)
	assert.Equal(t, "boom", payload.Message)
}

// TestSerializeError_Nil nil 错误返回 nil
func TestSerializeError_Nil(t *testing.T) {
	assert.Nil(t, SerializeError(nil))
}

// TestErrorPayload_Error ErrorPayload 实现 error 接口
func TestErrorPayload_Error(t *testing.T) {
	p := &ErrorPayload{Type: "TimeoutError", Message: "deadline exceeded"}
	assert.Equal(t, "TimeoutError: deadline exceeded", p.Error())

	assert.Equal(t, "only message", (&ErrorPayload{Message: "only message"}).Error())
	assert.Equal(t, "", (*ErrorPayload)(nil).Error())
}

// TestDecodeErrorPayload 测试失败回复解析
func TestDecodeErrorPayload(t *testing.T) {
	raw, err := json.Marshal(SerializeError(errors.New("ticket rejected")))
	require.NoError(t, err)

	payload := DecodeErrorPayload(raw)
	require.NotNil(t, payload)
	assert.Equal(t, "ticket rejected", payload.Message)
}

// TestDecodeErrorPayload_Malformed 无法解析时退化为原始文本
func TestDecodeErrorPayload_Malformed(t *testing.T) {
	payload := DecodeErrorPayload(json.RawMessage(`"just a string"`))
	require.NotNil(t, payload)
	assert.Equal(t, "UnknownError", payload.Type)
	assert.Contains(t, payload.Message, "just a string")

	payload = DecodeErrorPayload(json.RawMessage(`{invalid`))
	require.NotNil(t, payload)
	assert.Equal(t, "UnknownError", payload.Type)
}
