package saga

import "time"

// Saga 状态常量
const (
	// StatusNotStarted 已创建尚未执行
	StatusNotStarted = "not_started"
	// StatusRunning 正向执行中
	StatusRunning = "running"
	// StatusCompensating 补偿执行中
	StatusCompensating = "compensating"
	// StatusSucceeded 所有步骤成功（终态）
	StatusSucceeded = "succeeded"
	// StatusFailed 补偿完成后失败（终态）
	StatusFailed = "failed"
)

// IsTerminalStatus 判断状态是否为终态
//
// 终态后到达的回复一律丢弃。
func IsTerminalStatus(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// SagaState Saga 的持久状态
//
// 引擎在消息之间不保存任何内存状态，推进所需的全部信息
// 都从这里读取。
type SagaState struct {
	// SagaID 实例标识，同时是消息元组的关联键
	SagaID int64 `json:"saga_id"`

	// SagaName Saga 类型名
	SagaName string `json:"saga_name"`

	// Status 当前状态
	Status string `json:"status"`

	// LastMessageID 最近一次发出命令的 broker 消息ID
	LastMessageID string `json:"last_message_id,omitempty"`

	// FailedStep 首个失败步骤名
	FailedStep string `json:"failed_step,omitempty"`

	// FailedAt 失败时刻
	FailedAt *time.Time `json:"failed_at,omitempty"`

	// FailureDetails 失败的结构化错误信息
	FailureDetails *ErrorPayload `json:"failure_details,omitempty"`

	// Data 业务数据，由 Saga 实现读写
	Data map[string]any `json:"data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSagaState 创建初始状态
func NewSagaState(sagaID int64, sagaName string, data map[string]any) *SagaState {
	now := time.Now()
	if data == nil {
		data = make(map[string]any)
	}
	return &SagaState{
		SagaID:    sagaID,
		SagaName:  sagaName,
		Status:    StatusNotStarted,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal 当前状态是否为终态
func (s *SagaState) IsTerminal() bool {
	return IsTerminalStatus(s.Status)
}

// Clone 深拷贝（Data 浅层逐键复制）
func (s *SagaState) Clone() *SagaState {
	clone := *s
	if s.Data != nil {
		clone.Data = make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			clone.Data[k] = v
		}
	}
	if s.FailedAt != nil {
		t := *s.FailedAt
		clone.FailedAt = &t
	}
	if s.FailureDetails != nil {
		fd := *s.FailureDetails
		clone.FailureDetails = &fd
	}
	return &clone
}
