// Package messaging 提供 Saga 消息系统的核心抽象
//
// 模型围绕命名队列展开：发布方把带任务名的消息发到某个队列，
// 订阅方按 (queue, task) 绑定处理器。线上消息体固定为二元组
// [saga_id, payload]，任务名只存在于路由层（subject、stream
// 条目字段等），不进入消息体。
package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message 出站消息
//
// ID 由 broker 在发布时分配并通过 Publish 返回，出站时无需填写。
type Message struct {
	// Task 任务名（路由键），例如 "restaurant_service.create_ticket"
	Task string

	// SagaID 关联键，由发起方分配
	SagaID int64

	// Payload 结构化负载，按任务各自的 schema 序列化
	Payload any

	// Timestamp 发布时间（零值时由传输层填充）
	Timestamp time.Time
}

// NewMessage 创建出站消息
func NewMessage(task string, sagaID int64, payload any) *Message {
	return &Message{
		Task:      task,
		SagaID:    sagaID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// EncodeBody 编码线上消息体，固定为 [saga_id, payload] 二元组
func (m *Message) EncodeBody() ([]byte, error) {
	body, err := json.Marshal([2]any{m.SagaID, m.Payload})
	if err != nil {
		return nil, fmt.Errorf("encode message body for task %s: %w", m.Task, err)
	}
	return body, nil
}

// DecodeBody 解码线上消息体
//
// 返回：
//   - int64: saga_id
//   - json.RawMessage: 未解析的 payload（可能为 JSON null）
//   - error: 消息体不是二元组时返回错误
func DecodeBody(data []byte) (int64, json.RawMessage, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return 0, nil, fmt.Errorf("decode message body: %w", err)
	}
	if len(tuple) != 2 {
		return 0, nil, fmt.Errorf("decode message body: expected [saga_id, payload], got %d elements", len(tuple))
	}

	var sagaID int64
	if err := json.Unmarshal(tuple[0], &sagaID); err != nil {
		return 0, nil, fmt.Errorf("decode saga_id: %w", err)
	}

	return sagaID, tuple[1], nil
}

// Delivery 入站投递
//
// 由传输层解码后交给处理器。Payload 保持原始 JSON，由处理器按
// 任务各自的 schema 解析。
type Delivery struct {
	// MessageID broker 分配的消息ID
	MessageID string

	// Queue 消息到达的队列
	Queue string

	// Task 任务名
	Task string

	// SagaID 关联键
	SagaID int64

	// Payload 未解析的负载
	Payload json.RawMessage

	// Timestamp 消息发布时间
	Timestamp time.Time
}
