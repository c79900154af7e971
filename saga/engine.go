package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sagaflow/logging"
	"sagaflow/messaging"
)

// 回复结果
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// replyBinding 回复任务名到步骤的映射
type replyBinding struct {
	stepIndex int
	outcome   string
}

// registration 一种已注册的 Saga 类型
type registration struct {
	name          string
	ctor          Constructor
	responseQueue string
	byTask        map[string]replyBinding
}

// Engine Saga 编排引擎
//
// 引擎在消息之间不保存执行状态：Execute 同步推进到第一个异步
// 步骤后挂起，之后每条回复消息都重新读取持久状态、重建 Saga
// 实例再继续推进。因此同一仓库上的多个引擎进程可并行消费。
type Engine struct {
	broker messaging.IBroker
	repo   StateRepository
	logger logging.Logger

	mu       sync.RWMutex
	registry map[string]*registration
}

// NewEngine 创建引擎
//
// 参数:
//   - broker: 消息代理
//   - repo: 状态仓库
//   - logger: 日志器，nil 时使用全局日志器
func NewEngine(broker messaging.IBroker, repo StateRepository, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "saga.engine"))
	}
	return &Engine{
		broker:   broker,
		repo:     repo,
		logger:   logger,
		registry: make(map[string]*registration),
	}
}

// Broker 返回底层消息代理
func (e *Engine) Broker() messaging.IBroker {
	return e.broker
}

// Repository 返回状态仓库
func (e *Engine) Repository() StateRepository {
	return e.repo
}

// Register 注册 Saga 类型并订阅其回复队列
//
// 对每个异步步骤，在 "<name>.response" 队列上订阅成功/失败两个
// 回复任务。应在 broker Start 之前完成所有注册。
func (e *Engine) Register(name string, ctor Constructor) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.registry[name]; exists {
		return fmt.Errorf("%w: %s", ErrSagaAlreadyRegistered, name)
	}

	// 用探针实例枚举步骤，建立回复任务到步骤的映射
	probe := ctor(e, 0)
	steps := probe.Steps()
	if len(steps) == 0 {
		return fmt.Errorf("%w: %s", ErrSagaNoSteps, name)
	}

	reg := &registration{
		name:          name,
		ctor:          ctor,
		responseQueue: ResponseQueue(name),
		byTask:        make(map[string]replyBinding),
	}
	for i, step := range steps {
		if !step.IsAsync() {
			continue
		}
		if step.BaseTask == "" {
			return fmt.Errorf("saga %s: async step %s has no base task", name, step.Name)
		}
		reg.byTask[SuccessTaskName(step.BaseTask)] = replyBinding{stepIndex: i, outcome: outcomeSuccess}
		reg.byTask[FailureTaskName(step.BaseTask)] = replyBinding{stepIndex: i, outcome: outcomeFailure}
	}

	for task := range reg.byTask {
		handler := messaging.HandlerFunc("saga.reply", func(ctx context.Context, d *messaging.Delivery) error {
			return e.handleReply(ctx, reg, d)
		})
		if err := e.broker.Subscribe(reg.responseQueue, task, handler); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", reg.responseQueue, task, err)
		}
	}

	e.registry[name] = reg
	return nil
}

// Execute 启动一次 Saga
//
// 创建初始状态后同步执行步骤，直到遇到第一个异步步骤（发出
// 命令后挂起）或全部步骤完成。
//
// 参数:
//   - name: 已注册的 Saga 类型名
//   - sagaID: 实例标识，需全局唯一（如雪花ID）
//   - data: 初始业务数据
func (e *Engine) Execute(ctx context.Context, name string, sagaID int64, data map[string]any) error {
	e.mu.RLock()
	reg, ok := e.registry[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSagaNotRegistered, name)
	}

	if err := e.repo.Create(ctx, NewSagaState(sagaID, name, data)); err != nil {
		return err
	}
	if err := e.repo.UpdateStatus(ctx, sagaID, StatusRunning); err != nil {
		return err
	}

	e.logger.Info(ctx, "saga started",
		logging.String("saga", name),
		logging.Int64("saga_id", sagaID))

	s := reg.ctor(e, sagaID)
	return e.runFrom(ctx, s, 0)
}

// runFrom 从指定步骤开始正向推进
//
// 同步步骤连续执行；异步步骤发出命令后挂起等待回复；Action 为
// nil 的纯补偿步骤在正向执行中跳过。任一动作出错即转入补偿。
func (e *Engine) runFrom(ctx context.Context, s ISaga, start int) error {
	steps := s.Steps()
	for i := start; i < len(steps); i++ {
		step := steps[i]
		if step.Action == nil {
			continue
		}

		e.logger.Debug(ctx, "running step",
			logging.String("saga", s.Name()),
			logging.Int64("saga_id", s.ID()),
			logging.String("step", step.Name))

		if err := step.Action(ctx, s, step); err != nil {
			return e.failStep(ctx, s, i, SerializeError(err))
		}
		if step.IsAsync() {
			// 命令已发出，等待回复消息继续推进
			return nil
		}
	}
	return e.finishSuccess(ctx, s)
}

// handleReply 处理一条回复消息
//
// 处理顺序：映射步骤 → 终态守卫 → 去重 → 重建实例 → 推进或补偿。
// 已处理过或 Saga 已终态的回复直接丢弃，保证至少一次投递下的
// 幂等推进。
func (e *Engine) handleReply(ctx context.Context, reg *registration, d *messaging.Delivery) error {
	binding, ok := reg.byTask[d.Task]
	if !ok {
		return fmt.Errorf("%w: task %s", ErrStepNotFound, d.Task)
	}

	state, err := e.repo.Get(ctx, d.SagaID)
	if errors.Is(err, ErrSagaNotFound) {
		e.logger.Warn(ctx, "reply for unknown saga dropped",
			logging.String("task", d.Task),
			logging.Int64("saga_id", d.SagaID))
		return nil
	}
	if err != nil {
		return err
	}
	if state.IsTerminal() {
		e.logger.Warn(ctx, "reply after terminal status dropped",
			logging.String("saga", reg.name),
			logging.Int64("saga_id", d.SagaID),
			logging.String("status", state.Status),
			logging.String("task", d.Task))
		return nil
	}

	s := reg.ctor(e, d.SagaID)
	steps := s.Steps()
	if binding.stepIndex >= len(steps) {
		return fmt.Errorf("%w: index %d", ErrStepNotFound, binding.stepIndex)
	}
	step := steps[binding.stepIndex]

	first, err := e.repo.MarkReplyHandled(ctx, d.SagaID, step.Name, binding.outcome)
	if err != nil {
		return err
	}
	if !first {
		e.logger.Debug(ctx, "duplicate reply dropped",
			logging.Int64("saga_id", d.SagaID),
			logging.String("step", step.Name),
			logging.String("outcome", binding.outcome))
		return nil
	}

	if binding.outcome == outcomeFailure {
		failure := DecodeErrorPayload(d.Payload)
		if step.OnFailure != nil {
			if hookErr := step.OnFailure(ctx, s, step, d.Payload); hookErr != nil {
				e.logger.Warn(ctx, "on-failure hook failed",
					logging.Int64("saga_id", d.SagaID),
					logging.String("step", step.Name),
					logging.Error(hookErr))
			}
		}
		return e.failStep(ctx, s, binding.stepIndex, failure)
	}

	if step.OnSuccess != nil {
		if hookErr := step.OnSuccess(ctx, s, step, d.Payload); hookErr != nil {
			// 成功钩子出错等同于该步骤失败
			return e.failStep(ctx, s, binding.stepIndex, SerializeError(hookErr))
		}
	}
	return e.runFrom(ctx, s, binding.stepIndex+1)
}

// failStep 记录失败并转入补偿
func (e *Engine) failStep(ctx context.Context, s ISaga, failedIndex int, failure *ErrorPayload) error {
	step := s.Steps()[failedIndex]
	e.logger.Warn(ctx, "step failed, compensating",
		logging.String("saga", s.Name()),
		logging.Int64("saga_id", s.ID()),
		logging.String("step", step.Name),
		logging.String("error_type", failure.Type),
		logging.String("error", failure.Message))

	if err := e.repo.OnStepFailure(ctx, s.ID(), step.Name, failure); err != nil {
		return err
	}
	return e.compensate(ctx, s, failedIndex, failure)
}

// compensate 从失败步骤起按相反顺序执行补偿
//
// 补偿尽力而为：单个补偿动作出错只记录日志，级联继续，保证
// 所有已定义的补偿都被尝试。全部执行后进入失败终态。
func (e *Engine) compensate(ctx context.Context, s ISaga, failedIndex int, failure *ErrorPayload) error {
	if err := e.repo.UpdateStatus(ctx, s.ID(), StatusCompensating); err != nil {
		return err
	}

	steps := s.Steps()
	for i := failedIndex; i >= 0; i-- {
		step := steps[i]
		if !step.HasCompensation() {
			continue
		}
		e.logger.Info(ctx, "compensating step",
			logging.String("saga", s.Name()),
			logging.Int64("saga_id", s.ID()),
			logging.String("step", step.Name))
		if err := step.Compensation(ctx, s, step); err != nil {
			e.logger.Error(ctx, "compensation failed, continuing cascade",
				logging.Int64("saga_id", s.ID()),
				logging.String("step", step.Name),
				logging.Error(err))
		}
	}

	if err := s.OnSagaFailure(ctx, failure); err != nil {
		return err
	}
	e.logger.Info(ctx, "saga failed",
		logging.String("saga", s.Name()),
		logging.Int64("saga_id", s.ID()),
		logging.String("failed_step", steps[failedIndex].Name))
	return nil
}

// finishSuccess 所有步骤成功后的收尾
func (e *Engine) finishSuccess(ctx context.Context, s ISaga) error {
	if err := s.OnSagaSuccess(ctx); err != nil {
		return err
	}
	e.logger.Info(ctx, "saga succeeded",
		logging.String("saga", s.Name()),
		logging.Int64("saga_id", s.ID()))
	return nil
}

// sendForSaga 以 [saga_id, payload] 元组发布消息并记录消息ID
func (e *Engine) sendForSaga(ctx context.Context, sagaID int64, queue, task string, payload any) error {
	id, err := e.broker.Publish(ctx, queue, messaging.NewMessage(task, sagaID, payload))
	if err != nil {
		return err
	}
	if err := e.repo.SetLastMessageID(ctx, sagaID, id); err != nil {
		return err
	}
	e.logger.Debug(ctx, "command sent",
		logging.Int64("saga_id", sagaID),
		logging.String("queue", queue),
		logging.String("task", task),
		logging.String("message_id", id))
	return nil
}
