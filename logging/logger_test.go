package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(fn func()) string {
	var buf bytes.Buffer
	old := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(old)
	fn()
	return buf.String()
}

// TestStdLogger_Format 测试基本输出格式
func TestStdLogger_Format(t *testing.T) {
	logger := NewStdLogger("saga")
	ctx := context.Background()

	out := captureOutput(func() {
		logger.Info(ctx, "step started", String("step", "authorize_card"), Int64("saga_id", 42))
	})

	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "saga step started")
	assert.Contains(t, out, "step=authorize_card")
	assert.Contains(t, out, "saga_id=42")
}

// TestStdLogger_LevelFilter 测试级别过滤
func TestStdLogger_LevelFilter(t *testing.T) {
	logger := NewStdLoggerWithLevel("", WarnLevel)
	ctx := context.Background()

	out := captureOutput(func() {
		logger.Debug(ctx, "dropped")
		logger.Info(ctx, "dropped too")
		logger.Warn(ctx, "kept")
	})

	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

// TestStdLogger_WithFields 测试字段继承
func TestStdLogger_WithFields(t *testing.T) {
	base := NewStdLogger("")
	child := base.WithFields(String("component", "engine"))
	ctx := context.Background()

	out := captureOutput(func() {
		child.Error(ctx, "boom", Error(errors.New("dispatch failed")))
	})

	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "error=dispatch failed")

	// 子Logger不影响父Logger
	out = captureOutput(func() {
		base.Info(ctx, "plain")
	})
	assert.NotContains(t, out, "component=engine")
}

// TestGlobalLogger 测试全局Logger替换
func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	noop := NewNoopLogger()
	SetLogger(noop)
	require.Equal(t, Logger(noop), GetLogger())

	// nil 不应覆盖
	SetLogger(nil)
	require.Equal(t, Logger(noop), GetLogger())
}

// TestLevel_String 测试级别名称
func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}
