// Package messaging 提供消息代理抽象
package messaging

import (
	"context"
)

// IBroker 消息代理接口
//
// 引擎要求的最小 broker 能力：命名队列、带结构化负载的发布、
// 按 (queue, task) 订阅处理器、发布时返回 broker 分配的消息ID。
type IBroker interface {
	// Publish 发布消息到命名队列，返回 broker 分配的消息ID
	Publish(ctx context.Context, queue string, message *Message) (string, error)

	// Subscribe 在队列上按任务名注册处理器
	Subscribe(queue, task string, handler ITaskHandler) error

	// Unsubscribe 移除处理器
	Unsubscribe(queue, task string, handler ITaskHandler) error

	// Start 启动消费
	Start(ctx context.Context) error

	// Close 停止消费并释放连接
	Close() error

	// Stats 统计信息
	Stats() BrokerStats
}

// BrokerStats 代理统计信息
type BrokerStats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	Bindings     []string `json:"bindings"`
	QueueSize    int      `json:"queue_size,omitempty"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}

// BindingKey 组合 (queue, task) 为路由键
//
// 队列名与任务名都不应包含 "/"。
func BindingKey(queue, task string) string {
	return queue + "/" + task
}
