package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewSagaState 测试初始状态
func TestNewSagaState(t *testing.T) {
	state := NewSagaState(1001, "create_order_saga", map[string]any{"price": 20})

	assert.Equal(t, int64(1001), state.SagaID)
	assert.Equal(t, "create_order_saga", state.SagaName)
	assert.Equal(t, StatusNotStarted, state.Status)
	assert.Equal(t, 20, state.Data["price"])
	assert.False(t, state.IsTerminal())
	assert.False(t, state.CreatedAt.IsZero())

	// nil data 初始化为空 map
	assert.NotNil(t, NewSagaState(1, "s", nil).Data)
}

// TestIsTerminalStatus 终态判断
func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusSucceeded))
	assert.True(t, IsTerminalStatus(StatusFailed))
	assert.False(t, IsTerminalStatus(StatusNotStarted))
	assert.False(t, IsTerminalStatus(StatusRunning))
	assert.False(t, IsTerminalStatus(StatusCompensating))
}

// TestSagaState_Clone 克隆后互不影响
func TestSagaState_Clone(t *testing.T) {
	state := NewSagaState(1, "s", map[string]any{"k": "v"})
	clone := state.Clone()

	clone.Status = StatusFailed
	clone.Data["k"] = "changed"

	assert.Equal(t, StatusNotStarted, state.Status)
	assert.Equal(t, "v", state.Data["k"])
}

// TestMemoryRepository_CreateGet 测试创建与读取
func TestMemoryRepository_CreateGet(t *testing.T) {
	repo := NewMemoryStateRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, NewSagaState(1, "s", map[string]any{"a": 1})))

	state, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "s", state.SagaName)
	assert.Equal(t, StatusNotStarted, state.Status)

	// 重复创建
	assert.ErrorIs(t, repo.Create(ctx, NewSagaState(1, "s", nil)), ErrSagaAlreadyExists)

	// 不存在
	_, err = repo.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrSagaNotFound)
}

// TestMemoryRepository_Updates 测试各更新操作
func TestMemoryRepository_Updates(t *testing.T) {
	repo := NewMemoryStateRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewSagaState(1, "s", nil)))

	require.NoError(t, repo.UpdateStatus(ctx, 1, StatusRunning))
	require.NoError(t, repo.SetLastMessageID(ctx, 1, "m-42"))
	require.NoError(t, repo.UpdateData(ctx, 1, map[string]any{"card_id": 5}))
	require.NoError(t, repo.UpdateData(ctx, 1, map[string]any{"ticket_id": 9}))

	state, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, "m-42", state.LastMessageID)
	assert.Equal(t, 5, state.Data["card_id"])
	assert.Equal(t, 9, state.Data["ticket_id"])

	// 不存在的 saga
	assert.ErrorIs(t, repo.UpdateStatus(ctx, 404, StatusFailed), ErrSagaNotFound)
	assert.ErrorIs(t, repo.SetLastMessageID(ctx, 404, "m"), ErrSagaNotFound)
	assert.ErrorIs(t, repo.UpdateData(ctx, 404, nil), ErrSagaNotFound)
}

// TestMemoryRepository_OnStepFailure 首次失败记录不被覆盖
func TestMemoryRepository_OnStepFailure(t *testing.T) {
	repo := NewMemoryStateRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, NewSagaState(1, "s", nil)))

	first := &ErrorPayload{Type: "CardDeclined", Message: "declined"}
	require.NoError(t, repo.OnStepFailure(ctx, 1, "authorize_card", first))
	require.NoError(t, repo.OnStepFailure(ctx, 1, "other_step", &ErrorPayload{Type: "Later"}))

	state, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "authorize_card", state.FailedStep)
	require.NotNil(t, state.FailedAt)
	require.NotNil(t, state.FailureDetails)
	assert.Equal(t, "CardDeclined", state.FailureDetails.Type)
}

// TestMemoryRepository_MarkReplyHandled 回复去重
func TestMemoryRepository_MarkReplyHandled(t *testing.T) {
	repo := NewMemoryStateRepository()
	ctx := context.Background()

	first, err := repo.MarkReplyHandled(ctx, 1, "verify_consumer", "success")
	require.NoError(t, err)
	assert.True(t, first)

	dup, err := repo.MarkReplyHandled(ctx, 1, "verify_consumer", "success")
	require.NoError(t, err)
	assert.False(t, dup)

	// 不同 outcome 或不同步骤互不影响
	other, err := repo.MarkReplyHandled(ctx, 1, "verify_consumer", "failure")
	require.NoError(t, err)
	assert.True(t, other)

	other, err = repo.MarkReplyHandled(ctx, 2, "verify_consumer", "success")
	require.NoError(t, err)
	assert.True(t, other)
}
