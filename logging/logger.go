// Package logging 提供统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Logger 日志接口
type Logger interface {
	// Debug 调试日志
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info 信息日志
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn 警告日志
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error 错误日志
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 添加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration 以 time.Duration 作为字段值，格式化输出
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// StdLogger 标准库log实现
//
// 支持最低输出级别过滤，低于 minLevel 的日志会被丢弃。
type StdLogger struct {
	prefix   string
	minLevel Level
	fields   []Field
}

// NewStdLogger 创建标准库Logger
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{
		prefix:   prefix,
		minLevel: DebugLevel,
	}
}

// NewStdLoggerWithLevel 创建指定最低级别的标准库Logger
func NewStdLoggerWithLevel(prefix string, minLevel Level) *StdLogger {
	return &StdLogger{
		prefix:   prefix,
		minLevel: minLevel,
	}
}

func (l *StdLogger) log(level Level, msg string, fields ...Field) {
	if level < l.minLevel {
		return
	}

	line := "[" + level.String() + "]"
	if l.prefix != "" {
		line += " " + l.prefix
	}
	line += " " + msg
	for _, f := range l.fields {
		line += " " + f.Key + "=" + formatValue(f.Value)
	}
	for _, f := range fields {
		line += " " + f.Key + "=" + formatValue(f.Value)
	}
	log.Println(line)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{
		prefix:   l.prefix,
		minLevel: l.minLevel,
		fields:   merged,
	}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// 全局Logger（原子指针保证并发安全）
var globalLogger atomic.Pointer[Logger]

func init() {
	var l Logger = NewStdLogger("")
	globalLogger.Store(&l)
}

// SetLogger 设置全局Logger
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalLogger.Store(&logger)
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	return *globalLogger.Load()
}
