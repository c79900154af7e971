package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// TestOpen_SQLiteMemory 打开内存库并确认可用
func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(Config{DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

// TestOpen_UnknownDriver 未注册的驱动报错
func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "no_such_driver", DSN: ":memory:", PingTimeout: time.Second})
	assert.Error(t, err)
}
