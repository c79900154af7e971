// Package messaging 提供消息处理器抽象
package messaging

import (
	"context"
)

// ITaskHandler 任务处理器接口
type ITaskHandler interface {
	// Handle 处理一次投递
	Handle(ctx context.Context, delivery *Delivery) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// funcHandler 函数式处理器适配
type funcHandler struct {
	typ string
	fn  func(ctx context.Context, delivery *Delivery) error
}

func (h *funcHandler) Handle(ctx context.Context, delivery *Delivery) error {
	return h.fn(ctx, delivery)
}

func (h *funcHandler) Type() string { return h.typ }

// HandlerFunc 把函数适配为 ITaskHandler
func HandlerFunc(typ string, fn func(ctx context.Context, delivery *Delivery) error) ITaskHandler {
	return &funcHandler{typ: typ, fn: fn}
}
