// Package messaging 提供基于 Redis Stream 的任务事件队列
package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stream 流名称
type Stream string

// StreamTaskEvents 生成服务发布、同步 worker 消费的任务事件流
const StreamTaskEvents Stream = "redink:stream:task_events"

// DLQStream 对应的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

// ConsumerGroupHistorySync 把任务目录同步回历史记录的消费者组
const ConsumerGroupHistorySync ConsumerGroup = "cg-history-sync"

// 任务事件类型
const (
	MessageTypeTaskFinished = "task.finished"
	MessageTypeTaskEdited   = "task.edited"
)

// TaskEventMessage 一轮生成结束，或某一页被重绘、编辑、叠加 logo
type TaskEventMessage struct {
	TaskID   string `json:"task_id"`
	RecordID string `json:"record_id,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Message 流中的一条事件，请求 ID 与追踪 ID 随消息传到消费端日志
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// TaskEvent 解析任务事件载荷
func (m *Message) TaskEvent() (*TaskEventMessage, error) {
	var evt TaskEventMessage
	if err := json.Unmarshal(m.Payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return &evt, nil
}

// Backoff 失败重投的指数退避
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

var defaultBackoff = Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2}

// Delay 第 attempt 次重投前需要等待的时间，不超过 Max
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Multiplier <= 1 {
		return min(b.Initial, b.Max)
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
