// Package memory 提供基于内存队列的消息代理实现
// 适用于单机部署、开发环境和测试场景
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sagaflow/logging"
	"sagaflow/messaging"
)

// entry 内部队列条目（已编码的线上形态）
type entry struct {
	id        string
	queue     string
	task      string
	body      []byte
	timestamp time.Time
}

// MemoryBroker 内存消息代理实现
//
// 特性:
//   - 基于内存队列的异步消息投递
//   - Worker 池模式处理消息
//   - 发布时分配消息ID（uuid）
//   - 并发安全
//
// 使用场景:
//   - 单机部署
//   - 开发环境
//   - 测试场景
type MemoryBroker struct {
	handlers    map[string][]messaging.ITaskHandler
	queue       chan *entry
	queueSize   int
	workerCount int
	running     bool
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	logger      logging.Logger
}

// NewMemoryBroker 创建内存代理实例
//
// 参数:
//   - queueSize: 队列大小（<=0 时使用默认 1000）
//   - workerCount: Worker 数量（<=0 时使用默认 4）
func NewMemoryBroker(queueSize, workerCount int) *MemoryBroker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workerCount <= 0 {
		workerCount = 4
	}

	return &MemoryBroker{
		handlers:    make(map[string][]messaging.ITaskHandler),
		queue:       make(chan *entry, queueSize),
		queueSize:   queueSize,
		workerCount: workerCount,
		logger:      logging.GetLogger().WithFields(logging.String("component", "broker.memory")),
	}
}

// Publish 发布消息到命名队列
//
// 消息体编码为 [saga_id, payload] 后入队，由 Worker 池异步分发。
//
// 返回:
//   - string: 分配的消息ID
//   - error: 队列满或代理未启动时返回错误
func (b *MemoryBroker) Publish(ctx context.Context, queue string, message *messaging.Message) (string, error) {
	b.mutex.RLock()
	running := b.running
	b.mutex.RUnlock()

	if !running {
		return "", fmt.Errorf("memory broker is not running")
	}

	body, err := message.EncodeBody()
	if err != nil {
		return "", err
	}

	ts := message.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	e := &entry{
		id:        uuid.NewString(),
		queue:     queue,
		task:      message.Task,
		body:      body,
		timestamp: ts,
	}

	select {
	case b.queue <- e:
		return e.id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("message queue is full")
	}
}

// Stats 获取统计信息
func (b *MemoryBroker) Stats() messaging.BrokerStats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	handlerCount := 0
	bindings := make([]string, 0, len(b.handlers))

	for key, handlers := range b.handlers {
		bindings = append(bindings, key)
		handlerCount += len(handlers)
	}

	return messaging.BrokerStats{
		Running:      b.running,
		HandlerCount: handlerCount,
		Bindings:     bindings,
		QueueSize:    b.queueSize,
		QueueDepth:   len(b.queue),
		WorkerCount:  b.workerCount,
	}
}

// Ensure MemoryBroker implements messaging.IBroker
var _ messaging.IBroker = (*MemoryBroker)(nil)
