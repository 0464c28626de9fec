package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"redink-api/pkg/logger"
	"redink-api/pkg/tracer"
)

var otelTracer = otel.Tracer("redink/messaging")

const defaultMaxLen = 100000

// Producer 任务事件发布者，流按 MaxLen 近似裁剪
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建发布者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// PublishTaskEvent 发布任务事件，带上当前请求的 request_id 与 trace_id
func (p *Producer) PublishTaskEvent(ctx context.Context, msgType string, evt *TaskEventMessage) error {
	msg, err := newMessage(msgType, evt)
	if err != nil {
		return err
	}
	msg.RequestID, _ = ctx.Value(logger.RequestIDKey).(string)
	msg.TraceID = tracer.TraceID(ctx)

	ctx, span := otelTracer.Start(ctx, "messaging.PublishTaskEvent",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(StreamTaskEvents)),
			attribute.String("message.type", msgType),
			attribute.String("task_id", evt.TaskID),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode message: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(StreamTaskEvents),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish %s: %w", msgType, err)
	}
	span.SetAttributes(attribute.String("stream.message_id", id))
	return nil
}
