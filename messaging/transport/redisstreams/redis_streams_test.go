package redisstreams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagaflow/messaging"
)

type nopHandler struct{}

func (nopHandler) Handle(ctx context.Context, d *messaging.Delivery) error { return nil }
func (nopHandler) Type() string                                            { return "nop" }

// TestNewBroker_Defaults 测试默认配置
func TestNewBroker_Defaults(t *testing.T) {
	b := NewBroker(Config{})

	assert.Equal(t, "localhost:6379", b.cfg.Addr)
	assert.Equal(t, "saga:", b.cfg.StreamPrefix)
	assert.Equal(t, "sagaflow", b.cfg.Group)
	assert.Equal(t, 2*time.Second, b.cfg.BlockTime)
	assert.Equal(t, int64(16), b.cfg.BatchSize)
	assert.NotNil(t, b.logger)
}

// TestBroker_StreamName 测试队列到 stream 名的映射
func TestBroker_StreamName(t *testing.T) {
	b := NewBroker(Config{StreamPrefix: "orders:"})
	assert.Equal(t, "orders:create_order_saga.response", b.streamName("create_order_saga.response"))
}

// TestBroker_PublishNotRunning 未启动时发布应报错
func TestBroker_PublishNotRunning(t *testing.T) {
	b := NewBroker(Config{})

	_, err := b.Publish(context.Background(), "q", messaging.NewMessage("t", 1, nil))
	assert.Error(t, err)
}

// TestBroker_SubscribeBookkeeping 订阅登记与取消
func TestBroker_SubscribeBookkeeping(t *testing.T) {
	b := NewBroker(Config{})
	h := nopHandler{}

	require.NoError(t, b.Subscribe("q", "t", h))
	stats := b.Stats()
	assert.Equal(t, 1, stats.HandlerCount)
	assert.Equal(t, []string{"q/t"}, stats.Bindings)

	require.NoError(t, b.Unsubscribe("q", "t", h))
	assert.Error(t, b.Unsubscribe("q", "t", h))
	assert.Equal(t, 0, b.Stats().HandlerCount)
}

// TestBroker_QueuesFromBindings 从绑定推导出需要消费的队列集合
func TestBroker_QueuesFromBindings(t *testing.T) {
	b := NewBroker(Config{})
	require.NoError(t, b.Subscribe("q1", "a", nopHandler{}))
	require.NoError(t, b.Subscribe("q1", "b", nopHandler{}))
	require.NoError(t, b.Subscribe("q2", "a", nopHandler{}))

	b.mu.Lock()
	queues := b.queuesLocked()
	b.mu.Unlock()

	assert.Len(t, queues, 2)
	assert.Contains(t, queues, "q1")
	assert.Contains(t, queues, "q2")
}

// TestBroker_CloseNotRunning 未启动时 Close 报错
func TestBroker_CloseNotRunning(t *testing.T) {
	b := NewBroker(Config{})
	assert.Error(t, b.Close())
}
