package natsjetstream

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

	assert.Equal(t, "SAGAFLOW", b.cfg.Stream)
	assert.Equal(t, "saga.", b.cfg.SubjectPrefix)
	assert.Equal(t, "sagaflow-", b.cfg.DurablePrefix)
	assert.Equal(t, 30*time.Second, b.cfg.AckWait)
	assert.Equal(t, 1024, b.cfg.MaxAckPending)
	assert.NotNil(t, b.logger)
}

// TestBroker_SubjectName 测试队列任务到 subject 的映射
func TestBroker_SubjectName(t *testing.T) {
	b := NewBroker(Config{SubjectPrefix: "orders."})

	assert.Equal(t, "orders.consumer_service.commands.verify",
		b.subjectName("consumer_service.commands", "verify"))
}

// TestBroker_DurableName durable 名中不允许出现 '.'
func TestBroker_DurableName(t *testing.T) {
	b := NewBroker(Config{})

	durable := b.durableName("consumer_service.commands", "service.verify_details")
	assert.NotContains(t, durable, ".")
	assert.Contains(t, durable, "consumer_service-commands")
}

// TestBroker_PublishNotRunning 未启动时发布应报错
func TestBroker_PublishNotRunning(t *testing.T) {
	b := NewBroker(Config{})

	_, err := b.Publish(context.Background(), "q", messaging.NewMessage("t", 1, nil))
	assert.Error(t, err)
}

// TestBroker_SubscribeBookkeeping 订阅登记与统计
func TestBroker_SubscribeBookkeeping(t *testing.T) {
	b := NewBroker(Config{})
	h := nopHandler{}

	require.NoError(t, b.Subscribe("q", "t", h))
	stats := b.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 1, stats.HandlerCount)
	assert.Equal(t, []string{"q/t"}, stats.Bindings)

	require.NoError(t, b.Unsubscribe("q", "t", h))
	assert.Equal(t, 0, b.Stats().HandlerCount)
}

// TestBroker_CloseWithoutStart 未启动时 Close 不应 panic
func TestBroker_CloseWithoutStart(t *testing.T) {
	b := NewBroker(Config{})
	assert.NoError(t, b.Close())
}
