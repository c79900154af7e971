package saga

import (
	"context"
	"sync"
	"time"
)

// MemoryStateRepository 基于内存的状态仓库
//
// 用于测试和单进程部署，进程退出后状态丢失。
type MemoryStateRepository struct {
	mu      sync.RWMutex
	states  map[int64]*SagaState
	handled map[replyKey]struct{}
}

type replyKey struct {
	sagaID  int64
	step    string
	outcome string
}

// NewMemoryStateRepository 创建内存状态仓库
func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		states:  make(map[int64]*SagaState),
		handled: make(map[replyKey]struct{}),
	}
}

var _ StateRepository = (*MemoryStateRepository)(nil)

// Create 创建初始状态
func (r *MemoryStateRepository) Create(ctx context.Context, state *SagaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.states[state.SagaID]; exists {
		return ErrSagaAlreadyExists
	}
	r.states[state.SagaID] = state.Clone()
	return nil
}

// Get 读取状态
func (r *MemoryStateRepository) Get(ctx context.Context, sagaID int64) (*SagaState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[sagaID]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return state.Clone(), nil
}

// UpdateStatus 更新状态字段
func (r *MemoryStateRepository) UpdateStatus(ctx context.Context, sagaID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sagaID]
	if !ok {
		return ErrSagaNotFound
	}
	state.Status = status
	state.UpdatedAt = time.Now()
	return nil
}

// SetLastMessageID 记录最近发出的消息ID
func (r *MemoryStateRepository) SetLastMessageID(ctx context.Context, sagaID int64, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sagaID]
	if !ok {
		return ErrSagaNotFound
	}
	state.LastMessageID = messageID
	state.UpdatedAt = time.Now()
	return nil
}

// UpdateData 合并写入业务数据
func (r *MemoryStateRepository) UpdateData(ctx context.Context, sagaID int64, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sagaID]
	if !ok {
		return ErrSagaNotFound
	}
	if state.Data == nil {
		state.Data = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		state.Data[k] = v
	}
	state.UpdatedAt = time.Now()
	return nil
}

// OnStepFailure 记录首个失败步骤
func (r *MemoryStateRepository) OnStepFailure(ctx context.Context, sagaID int64, stepName string, failure *ErrorPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sagaID]
	if !ok {
		return ErrSagaNotFound
	}
	if state.FailedStep != "" {
		return nil
	}
	now := time.Now()
	state.FailedStep = stepName
	state.FailedAt = &now
	state.FailureDetails = failure
	state.UpdatedAt = now
	return nil
}

// MarkReplyHandled 回复去重标记
func (r *MemoryStateRepository) MarkReplyHandled(ctx context.Context, sagaID int64, stepName, outcome string) (bool, error) {
	key := replyKey{sagaID: sagaID, step: stepName, outcome: outcome}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.handled[key]; seen {
		return false, nil
	}
	r.handled[key] = struct{}{}
	return true, nil
}
