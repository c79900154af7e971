package saga

import (
	"encoding/json"
	"reflect"
	"runtime/debug"
)

// ErrorPayload 失败回复的结构化错误信息
//
// 参与方处理器失败时将错误序列化为该结构，编排器据此记录失败
// 详情并驱动补偿。Traceback 仅用于诊断，消费方不应依赖其格式。
type ErrorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Module    string `json:"module"`
	Traceback string `json:"traceback"`
}

// Error implements the error interface so a decoded payload can flow
// through normal error paths on the orchestrator side.
func (p *ErrorPayload) Error() string {
	if p == nil {
		return ""
	}
	if p.Type != "" {
		return p.Type + ": " + p.Message
	}
	return p.Message
}

// SerializeError 将 Go error 转换为可跨服务传输的 ErrorPayload
//
// Type 取错误的具体类型名，Module 取其包路径，Traceback 为
// 序列化时刻的调用栈。err 为 nil 时返回 nil。
func SerializeError(err error) *ErrorPayload {
	if err == nil {
		return nil
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	payload := &ErrorPayload{
		Type:      t.Name(),
		Message:   err.Error(),
		Module:    t.PkgPath(),
		Traceback: string(debug.Stack()),
	}
	if payload.Type == "" {
		payload.Type = t.String()
	}
	return payload
}

// DecodeErrorPayload 解析失败回复中的错误信息
//
// 无法解析时退化为只含原始文本的 ErrorPayload，保证补偿
// 流程不因错误格式而中断。
func DecodeErrorPayload(data json.RawMessage) *ErrorPayload {
	var payload ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil || (payload.Type == "" && payload.Message == "") {
		return &ErrorPayload{
			Type:    "UnknownError",
			Message: string(data),
		}
	}
	return &payload
}
