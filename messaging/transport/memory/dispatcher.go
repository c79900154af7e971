// Package memory 实现消息分发逻辑
package memory

import (
	"context"

	"sagaflow/logging"
	"sagaflow/messaging"
)

// dispatch 分发队列条目到订阅的处理器
//
// 处理流程:
//  1. 解码 [saga_id, payload] 消息体
//  2. 收集 (queue, task) 精确匹配和队列级通配符 ("*") 的处理器
//  3. 依次调用所有处理器
func (b *MemoryBroker) dispatch(ctx context.Context, e *entry) {
	sagaID, payload, err := messaging.DecodeBody(e.body)
	if err != nil {
		b.logger.Warn(ctx, "decode queued message failed",
			logging.String("queue", e.queue),
			logging.String("task", e.task),
			logging.Error(err))
		return
	}

	b.mutex.RLock()
	exact := b.handlers[messaging.BindingKey(e.queue, e.task)]
	wildcard := b.handlers[messaging.BindingKey(e.queue, "*")]

	// 拷贝到新的切片，避免在读锁释放后被并发修改
	handlers := make([]messaging.ITaskHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	b.mutex.RUnlock()

	if len(handlers) == 0 {
		return
	}

	delivery := &messaging.Delivery{
		MessageID: e.id,
		Queue:     e.queue,
		Task:      e.task,
		SagaID:    sagaID,
		Payload:   payload,
		Timestamp: e.timestamp,
	}

	// 异步分发，handler 错误不会传播给发布者。
	// 如需错误处理，请在 handler 内部实现重试等机制。
	for _, handler := range handlers {
		if err := handler.Handle(ctx, delivery); err != nil {
			b.logger.Warn(ctx, "task handler failed",
				logging.String("queue", e.queue),
				logging.String("task", e.task),
				logging.String("message_id", e.id),
				logging.Error(err))
		}
	}
}
