package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDo_SucceedsFirstTry 测试首次成功不重试
func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// TestDo_RetriesThenSucceeds 测试失败后重试成功
func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	cfg := FixedConfig(2, time.Millisecond)

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestDo_ExhaustsAttempts 测试重试耗尽返回最后错误
func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("permanent")
	cfg := FixedConfig(1, time.Millisecond)

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	}, cfg)

	assert.Equal(t, wantErr, err)
	assert.Equal(t, 2, calls)
}

// TestDo_ContextCancelled 测试上下文取消中断重试
func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, BackoffFactor: 1, MaxDelay: 50 * time.Millisecond}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("always")
	}, cfg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls, 1)
}

// TestDoWithInfo_AttemptNumbers 测试尝试次数传递
func TestDoWithInfo_AttemptNumbers(t *testing.T) {
	var attempts []int
	cfg := FixedConfig(2, 0)

	_ = DoWithInfo(context.Background(), func(ctx context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		return errors.New("always")
	}, cfg)

	assert.Equal(t, []int{1, 2, 3}, attempts)
}

// TestFixedConfig 测试固定延迟配置
func TestFixedConfig(t *testing.T) {
	cfg := FixedConfig(3, 5*time.Millisecond)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 1.0, cfg.BackoffFactor)

	// 负数重试按 0 处理
	cfg = FixedConfig(-1, time.Millisecond)
	assert.Equal(t, 1, cfg.MaxAttempts)
}
