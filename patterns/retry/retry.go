// Package retry 提供有界重试辅助函数
//
// 用于参与方命令处理器的自动重试（固定延迟）以及一般的指数退避场景。
package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作函数类型
type Operation func(ctx context.Context) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数（1.0 表示固定延迟）
	MaxDelay      time.Duration // 最大延迟
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 2（1次初始 + 1次重试）
//   - InitialDelay: 2ms
//   - BackoffFactor: 2.0（指数退避）
//   - MaxDelay: 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   2,
		InitialDelay:  2 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      1 * time.Second,
	}
}

// FixedConfig 返回固定延迟的重试配置
//
// 参数：
//   - retries: 首次失败后的重试次数
//   - delay: 每次重试前的固定等待
func FixedConfig(retries int, delay time.Duration) Config {
	if retries < 0 {
		retries = 0
	}
	return Config{
		MaxAttempts:   retries + 1,
		InitialDelay:  delay,
		BackoffFactor: 1.0,
		MaxDelay:      delay,
	}
}

// Do 执行带重试的操作
//
// 参数：
//   - ctx: 上下文（支持取消）
//   - op: 要执行的操作
//   - cfg: 重试配置
//
// 返回：
//   - 最后一次执行的错误（如果所有尝试都失败）
//   - nil（如果任意一次尝试成功）
func Do(ctx context.Context, op Operation, cfg Config) error {
	return DoWithInfo(ctx, func(ctx context.Context, _ int) error {
		return op(ctx)
	}, cfg)
}

// OperationWithInfo 接收当前尝试次数的操作函数类型
type OperationWithInfo func(ctx context.Context, attempt int) error

// DoWithInfo 执行带重试的操作，每次尝试都会传入当前尝试次数（从 1 开始）
func DoWithInfo(ctx context.Context, op OperationWithInfo, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		// 最后一次尝试不需要等待
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if cfg.BackoffFactor > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		}
	}

	return lastErr
}
