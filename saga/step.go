package saga

import (
	"context"
	"encoding/json"
)

// StepKind 步骤类型
type StepKind int

const (
	// StepSync 同步步骤：动作在编排器进程内完成，无消息往返
	StepSync StepKind = iota
	// StepAsync 异步步骤：动作发送命令给参与方，等待回复后推进
	StepAsync
)

// ActionFunc 步骤动作或补偿动作
//
// 同步步骤的动作直接执行业务逻辑；异步步骤的动作负责发送命令
// 消息（通常通过 Base.Send）。补偿动作在回滚时以相反顺序调用。
type ActionFunc func(ctx context.Context, s ISaga, step *Step) error

// ReplyFunc 回复钩子
//
// 异步步骤收到成功/失败回复时调用，payload 为回复消息的原始负载。
type ReplyFunc func(ctx context.Context, s ISaga, step *Step, payload json.RawMessage) error

// Step 单个 Saga 步骤
//
// 通过 NewSyncStep/NewAsyncStep 构造，再用 WithXxx 链式补充
// 补偿和回复钩子。构造后不应再修改。
type Step struct {
	// Name 步骤名，用于状态记录与日志
	Name string

	// Kind 同步或异步
	Kind StepKind

	// BaseTask 异步步骤的基础任务名，回复任务名由它派生
	BaseTask string

	// Action 正向动作；为 nil 时该步骤在正向执行中跳过
	// （纯补偿步骤，如下单后占位的 reject_order）
	Action ActionFunc

	// Compensation 补偿动作；为 nil 时回滚时跳过该步骤
	Compensation ActionFunc

	// OnSuccess 成功回复钩子，返回错误视同步骤失败
	OnSuccess ReplyFunc

	// OnFailure 失败回复钩子，仅用于记录，返回错误不改变流程
	OnFailure ReplyFunc
}

// NewSyncStep 创建同步步骤
func NewSyncStep(name string) *Step {
	return &Step{Name: name, Kind: StepSync}
}

// NewAsyncStep 创建异步步骤
//
// 参数:
//   - name: 步骤名
//   - baseTask: 参与方的基础任务名，如 "consumer_service.verify_consumer_details"
func NewAsyncStep(name, baseTask string) *Step {
	return &Step{Name: name, Kind: StepAsync, BaseTask: baseTask}
}

// WithAction 设置正向动作
func (s *Step) WithAction(fn ActionFunc) *Step {
	s.Action = fn
	return s
}

// WithCompensation 设置补偿动作
func (s *Step) WithCompensation(fn ActionFunc) *Step {
	s.Compensation = fn
	return s
}

// WithOnSuccess 设置成功回复钩子
func (s *Step) WithOnSuccess(fn ReplyFunc) *Step {
	s.OnSuccess = fn
	return s
}

// WithOnFailure 设置失败回复钩子
func (s *Step) WithOnFailure(fn ReplyFunc) *Step {
	s.OnFailure = fn
	return s
}

// IsAsync 是否为异步步骤
func (s *Step) IsAsync() bool {
	return s.Kind == StepAsync
}

// HasCompensation 是否定义了补偿动作
func (s *Step) HasCompensation() bool {
	return s.Compensation != nil
}
