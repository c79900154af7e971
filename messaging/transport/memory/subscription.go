// Package memory 实现订阅管理
package memory

import (
	"fmt"

	"sagaflow/messaging"
)

// Subscribe 在队列上按任务名注册处理器
//
// 支持多个处理器订阅同一 (queue, task)
// 任务名 "*" 订阅该队列的所有消息
func (b *MemoryBroker) Subscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.handlers[key] = append(b.handlers[key], handler)
	return nil
}

// Unsubscribe 移除处理器
func (b *MemoryBroker) Unsubscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	handlers, ok := b.handlers[key]
	if !ok {
		return fmt.Errorf("no handlers for %s", key)
	}

	for i, h := range handlers {
		if h == handler {
			b.handlers[key] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("handler not found for %s", key)
}
