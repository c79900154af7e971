package saga

import "errors"

var (
	// ErrSagaNotFound Saga 状态不存在
	ErrSagaNotFound = errors.New("saga not found")

	// ErrSagaNotRegistered Saga 类型未注册
	ErrSagaNotRegistered = errors.New("saga not registered")

	// ErrSagaAlreadyRegistered Saga 类型重复注册
	ErrSagaAlreadyRegistered = errors.New("saga already registered")

	// ErrSagaAlreadyExists 同一 saga_id 重复创建
	ErrSagaAlreadyExists = errors.New("saga already exists")

	// ErrSagaNoSteps Saga 未定义任何步骤
	ErrSagaNoSteps = errors.New("saga has no steps")

	// ErrSagaTerminal Saga 已到达终态
	ErrSagaTerminal = errors.New("saga is in terminal status")

	// ErrStepNotFound 回复任务无法映射到任何步骤
	ErrStepNotFound = errors.New("step not found")
)
