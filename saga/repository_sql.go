package saga

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStateRepository 基于 database/sql 的状态仓库
//
// Schema 使用 SQLite 方言（测试用 modernc.org/sqlite），表结构足够
// 简单，迁移到其他数据库只需替换少量语句。
type SQLStateRepository struct {
	db *sql.DB
}

// Schema 建表语句，调用方可直接执行或交给迁移工具
const Schema = `
CREATE TABLE IF NOT EXISTS saga_states (
	saga_id         INTEGER PRIMARY KEY,
	saga_name       TEXT    NOT NULL,
	status          TEXT    NOT NULL,
	last_message_id TEXT    NOT NULL DEFAULT '',
	failed_step     TEXT    NOT NULL DEFAULT '',
	failed_at       TIMESTAMP,
	failure_details TEXT,
	data            TEXT    NOT NULL DEFAULT '{}',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS saga_handled_replies (
	saga_id   INTEGER NOT NULL,
	step_name TEXT    NOT NULL,
	outcome   TEXT    NOT NULL,
	handled_at TIMESTAMP NOT NULL,
	PRIMARY KEY (saga_id, step_name, outcome)
);
`

// NewSQLStateRepository 创建 SQL 状态仓库并确保表存在
func NewSQLStateRepository(db *sql.DB) (*SQLStateRepository, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("create saga tables: %w", err)
	}
	return &SQLStateRepository{db: db}, nil
}

var _ StateRepository = (*SQLStateRepository)(nil)

// Create 创建初始状态
func (r *SQLStateRepository) Create(ctx context.Context, state *SagaState) error {
	data, err := json.Marshal(state.Data)
	if err != nil {
		return fmt.Errorf("marshal saga data: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO saga_states
			(saga_id, saga_name, status, last_message_id, data, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?, ?)`,
		state.SagaID, state.SagaName, state.Status, string(data),
		state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSagaAlreadyExists
	}
	return nil
}

// Get 读取状态
func (r *SQLStateRepository) Get(ctx context.Context, sagaID int64) (*SagaState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT saga_id, saga_name, status, last_message_id, failed_step,
		       failed_at, failure_details, data, created_at, updated_at
		FROM saga_states WHERE saga_id = ?`, sagaID)

	var (
		state       SagaState
		failedAt    sql.NullTime
		failureJSON sql.NullString
		dataJSON    string
	)
	err := row.Scan(&state.SagaID, &state.SagaName, &state.Status,
		&state.LastMessageID, &state.FailedStep,
		&failedAt, &failureJSON, &dataJSON,
		&state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSagaNotFound
	}
	if err != nil {
		return nil, err
	}

	if failedAt.Valid {
		t := failedAt.Time
		state.FailedAt = &t
	}
	if failureJSON.Valid && failureJSON.String != "" {
		var fd ErrorPayload
		if err := json.Unmarshal([]byte(failureJSON.String), &fd); err == nil {
			state.FailureDetails = &fd
		}
	}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &state.Data); err != nil {
			return nil, fmt.Errorf("unmarshal saga data: %w", err)
		}
	}
	return &state, nil
}

// UpdateStatus 更新状态字段
func (r *SQLStateRepository) UpdateStatus(ctx context.Context, sagaID int64, status string) error {
	return r.exec(ctx, `UPDATE saga_states SET status = ?, updated_at = ? WHERE saga_id = ?`,
		status, time.Now(), sagaID)
}

// SetLastMessageID 记录最近发出的消息ID
func (r *SQLStateRepository) SetLastMessageID(ctx context.Context, sagaID int64, messageID string) error {
	return r.exec(ctx, `UPDATE saga_states SET last_message_id = ?, updated_at = ? WHERE saga_id = ?`,
		messageID, time.Now(), sagaID)
}

// UpdateData 合并写入业务数据
//
// 读-改-写实现；业务数据仅由持有该 saga 消息的处理器更新，
// 同一 saga 的并发写入由回复去重排除。
func (r *SQLStateRepository) UpdateData(ctx context.Context, sagaID int64, fields map[string]any) error {
	state, err := r.Get(ctx, sagaID)
	if err != nil {
		return err
	}
	if state.Data == nil {
		state.Data = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		state.Data[k] = v
	}
	data, err := json.Marshal(state.Data)
	if err != nil {
		return fmt.Errorf("marshal saga data: %w", err)
	}
	return r.exec(ctx, `UPDATE saga_states SET data = ?, updated_at = ? WHERE saga_id = ?`,
		string(data), time.Now(), sagaID)
}

// OnStepFailure 记录首个失败步骤
func (r *SQLStateRepository) OnStepFailure(ctx context.Context, sagaID int64, stepName string, failure *ErrorPayload) error {
	details, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("marshal failure details: %w", err)
	}
	now := time.Now()
	// failed_step = '' 的条件保证只记录首次失败
	res, err := r.db.ExecContext(ctx, `
		UPDATE saga_states
		SET failed_step = ?, failed_at = ?, failure_details = ?, updated_at = ?
		WHERE saga_id = ? AND failed_step = ''`,
		stepName, now, string(details), now, sagaID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// 要么 saga 不存在，要么已有失败记录
		if _, getErr := r.Get(ctx, sagaID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// MarkReplyHandled 回复去重标记
func (r *SQLStateRepository) MarkReplyHandled(ctx context.Context, sagaID int64, stepName, outcome string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO saga_handled_replies (saga_id, step_name, outcome, handled_at)
		VALUES (?, ?, ?, ?)`,
		sagaID, stepName, outcome, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLStateRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSagaNotFound
	}
	return nil
}
