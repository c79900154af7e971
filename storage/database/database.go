// Package database 提供 database/sql 连接的最小封装
//
// Saga 状态仓储直接使用 *sql.DB，这里只负责按配置打开连接、
// 设置连接池参数并做可用性检查。调用方必须确保所配置的 Driver
// 已通过空导入注册（例如 `_ "modernc.org/sqlite"`）。
package database

import (
	"context"
	"database/sql"
	"time"
)

// Config 数据库连接配置
type Config struct {
	Driver          string // 默认 "sqlite"
	DSN             string // 连接串，sqlite 下为文件路径或 ":memory:"
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration // 默认 3s
}

// Open 打开连接并确认可用
func Open(cfg Config) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
