package saga

import "context"

// StateRepository Saga 状态持久化接口
//
// 引擎的无状态设计依赖该接口：每条消息到达时读取状态、推进后
// 写回。MarkReplyHandled 提供回复去重，配合至少一次投递语义。
type StateRepository interface {
	// Create 创建初始状态，saga_id 已存在时返回 ErrSagaAlreadyExists
	Create(ctx context.Context, state *SagaState) error

	// Get 读取状态，不存在时返回 ErrSagaNotFound
	Get(ctx context.Context, sagaID int64) (*SagaState, error)

	// UpdateStatus 更新状态字段
	UpdateStatus(ctx context.Context, sagaID int64, status string) error

	// SetLastMessageID 记录最近一次发出命令的消息ID
	SetLastMessageID(ctx context.Context, sagaID int64, messageID string) error

	// UpdateData 合并写入业务数据字段
	UpdateData(ctx context.Context, sagaID int64, fields map[string]any) error

	// OnStepFailure 记录首个失败步骤及其错误详情
	//
	// 仅首次失败生效，后续调用不覆盖已有的失败记录。
	OnStepFailure(ctx context.Context, sagaID int64, stepName string, failure *ErrorPayload) error

	// MarkReplyHandled 标记 (saga, step, outcome) 的回复已处理
	//
	// 返回:
	//   - bool: true 表示首次处理，false 表示重复投递应丢弃
	MarkReplyHandled(ctx context.Context, sagaID int64, stepName, outcome string) (bool, error)
}
