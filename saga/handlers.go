package saga

import (
	"context"
	"encoding/json"
	"time"

	"sagaflow/logging"
	"sagaflow/messaging"
	"sagaflow/patterns/retry"
)

// StepHandlerFunc 参与方步骤的业务逻辑
//
// 返回值作为成功回复的负载；返回错误时序列化为 ErrorPayload
// 发送失败回复。
type StepHandlerFunc func(ctx context.Context, sagaID int64, payload json.RawMessage) (any, error)

// CompensationFunc 参与方补偿任务的业务逻辑
//
// 补偿不产生回复消息。
type CompensationFunc func(ctx context.Context, sagaID int64, payload json.RawMessage) error

// stepHandler 包装业务逻辑为命令处理器，自动发送成功/失败回复
type stepHandler struct {
	broker     messaging.IBroker
	baseTask   string
	replyQueue string
	fn         StepHandlerFunc
	logger     logging.Logger
}

// NewStepHandler 创建步骤命令处理器
//
// 业务逻辑的结果自动回复到 Saga 的回复队列：成功时任务名为
// "<baseTask>.response.success"，负载为返回值；失败时任务名为
// "<baseTask>.response.failure"，负载为序列化后的错误。
//
// 参数:
//   - broker: 消息代理
//   - baseTask: 该处理器服务的基础任务名
//   - replyQueue: Saga 回复队列，如 "create_order_saga.response"
//   - fn: 业务逻辑
func NewStepHandler(broker messaging.IBroker, baseTask, replyQueue string, fn StepHandlerFunc) messaging.ITaskHandler {
	return &stepHandler{
		broker:     broker,
		baseTask:   baseTask,
		replyQueue: replyQueue,
		fn:         fn,
		logger:     logging.GetLogger().WithFields(logging.String("component", "saga.handler")),
	}
}

// NewAutoRetryStepHandler 创建带固定间隔重试的步骤处理器
//
// 业务逻辑失败后按固定间隔重试，共尝试 maxRetries+1 次；全部
// 失败才发送失败回复。适合参与方侧的瞬时故障。
func NewAutoRetryStepHandler(broker messaging.IBroker, baseTask, replyQueue string, fn StepHandlerFunc, maxRetries int, delay time.Duration) messaging.ITaskHandler {
	cfg := retry.FixedConfig(maxRetries, delay)
	wrapped := func(ctx context.Context, sagaID int64, payload json.RawMessage) (any, error) {
		var result any
		err := retry.Do(ctx, func(ctx context.Context) error {
			var ferr error
			result, ferr = fn(ctx, sagaID, payload)
			return ferr
		}, cfg)
		return result, err
	}
	return NewStepHandler(broker, baseTask, replyQueue, wrapped)
}

func (h *stepHandler) Handle(ctx context.Context, d *messaging.Delivery) error {
	result, err := h.fn(ctx, d.SagaID, d.Payload)
	if err != nil {
		h.logger.Warn(ctx, "step handler failed, sending failure reply",
			logging.String("task", h.baseTask),
			logging.Int64("saga_id", d.SagaID),
			logging.Error(err))
		return h.reply(ctx, d.SagaID, FailureTaskName(h.baseTask), SerializeError(err))
	}
	return h.reply(ctx, d.SagaID, SuccessTaskName(h.baseTask), result)
}

func (h *stepHandler) Type() string {
	return h.baseTask
}

// reply 发送回复；发布失败时返回错误，由 broker 的重投机制兜底
func (h *stepHandler) reply(ctx context.Context, sagaID int64, task string, payload any) error {
	_, err := h.broker.Publish(ctx, h.replyQueue, messaging.NewMessage(task, sagaID, payload))
	return err
}

// compensationHandler 补偿任务处理器，不发送任何回复
type compensationHandler struct {
	task   string
	fn     CompensationFunc
	logger logging.Logger
}

// NewCompensationHandler 创建补偿命令处理器
//
// 补偿是尽力而为的：执行失败返回错误交给 broker 重投，但不会
// 向 Saga 回复任何消息。
func NewCompensationHandler(task string, fn CompensationFunc) messaging.ITaskHandler {
	return &compensationHandler{
		task:   task,
		fn:     fn,
		logger: logging.GetLogger().WithFields(logging.String("component", "saga.compensation")),
	}
}

func (h *compensationHandler) Handle(ctx context.Context, d *messaging.Delivery) error {
	if err := h.fn(ctx, d.SagaID, d.Payload); err != nil {
		h.logger.Error(ctx, "compensation handler failed",
			logging.String("task", h.task),
			logging.Int64("saga_id", d.SagaID),
			logging.Error(err))
		return err
	}
	return nil
}

func (h *compensationHandler) Type() string {
	return h.task
}
