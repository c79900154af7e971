package saga

import (
	"context"
)

// ISaga 一次 Saga 实例
//
// 实现方内嵌 Base 获得发送与状态辅助方法，并在构造函数中定义
// 步骤列表。引擎在每条消息到达时通过 Constructor 重建实例，
// 实例自身不在消息间保存状态，持久状态全部在 StateRepository。
type ISaga interface {
	// ID Saga 实例标识
	ID() int64

	// Name Saga 类型名，亦决定回复队列名
	Name() string

	// Steps 步骤列表，顺序即执行顺序
	Steps() []*Step

	// OnSagaSuccess 所有步骤成功后的终态钩子
	OnSagaSuccess(ctx context.Context) error

	// OnSagaFailure 补偿完成后的终态钩子
	OnSagaFailure(ctx context.Context, failure *ErrorPayload) error
}

// Constructor 按 saga_id 重建 Saga 实例
type Constructor func(engine *Engine, sagaID int64) ISaga

// Base 为 ISaga 实现提供公共能力
//
// 内嵌后获得命令发送、状态读写和默认终态钩子。
type Base struct {
	Engine *Engine
	SagaID int64
}

// ID 返回 Saga 实例标识
func (b *Base) ID() int64 {
	return b.SagaID
}

// Send 向参与方服务发送命令
//
// 队列名按 "<service>.commands" 约定派生，消息ID由 broker 分配并
// 记入状态的 last_message_id。
//
// 参数:
//   - service: 参与方服务名
//   - task: 任务名
//   - payload: 业务负载，编码为 [saga_id, payload] 元组
func (b *Base) Send(ctx context.Context, service, task string, payload any) error {
	return b.Engine.sendForSaga(ctx, b.SagaID, CommandsQueue(service), task, payload)
}

// SendTask 以显式队列名发送任务
//
// 用于补偿等不走服务名约定的场景。
func (b *Base) SendTask(ctx context.Context, queue, task string, payload any) error {
	return b.Engine.sendForSaga(ctx, b.SagaID, queue, task, payload)
}

// State 读取当前持久状态
func (b *Base) State(ctx context.Context) (*SagaState, error) {
	return b.Engine.repo.Get(ctx, b.SagaID)
}

// UpdateData 合并写入业务数据字段
func (b *Base) UpdateData(ctx context.Context, fields map[string]any) error {
	return b.Engine.repo.UpdateData(ctx, b.SagaID, fields)
}

// OnSagaSuccess 默认实现：将状态置为 succeeded
func (b *Base) OnSagaSuccess(ctx context.Context) error {
	return b.Engine.repo.UpdateStatus(ctx, b.SagaID, StatusSucceeded)
}

// OnSagaFailure 默认实现：将状态置为 failed
func (b *Base) OnSagaFailure(ctx context.Context, failure *ErrorPayload) error {
	return b.Engine.repo.UpdateStatus(ctx, b.SagaID, StatusFailed)
}
