package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"redink-api/internal/client/sse"
	"redink-api/pkg/logger"
)

// SSE 事件类型
const (
	EventProgress    = "progress"
	EventComplete    = "complete"
	EventError       = "error"
	EventFinish      = "finish"
	EventRetryStart  = "retry_start"
	EventRetryFinish = "retry_finish"
)

// ProgressEvent progress 事件；retry_start 也以此形式下发，Status 为 retry_start
type ProgressEvent struct {
	Index   *int   `json:"index,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase,omitempty"`
}

// CompleteEvent 某页生成完成
type CompleteEvent struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
	Phase    string `json:"phase,omitempty"`
}

// ErrorEvent 某页生成失败
type ErrorEvent struct {
	Index     int    `json:"index"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Phase     string `json:"phase,omitempty"`
}

// FinishEvent finish / retry_finish；重试流没有 TaskID 与 Images
type FinishEvent struct {
	Success       bool      `json:"success"`
	TaskID        string    `json:"task_id,omitempty"`
	Images        []*string `json:"images,omitempty"`
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	FailedIndices []int     `json:"failed_indices,omitempty"`
	Retry         bool      `json:"-"`
}

// StreamHandlers 事件回调，未设置的回调忽略对应事件
type StreamHandlers struct {
	OnProgress    func(ProgressEvent)
	OnComplete    func(CompleteEvent)
	OnError       func(ErrorEvent)
	OnFinish      func(FinishEvent)
	OnStreamError func(*Failure)
}

// StreamGenerate 批量生成，阻塞直到流结束
// 传输失败时 OnStreamError 恰好调用一次，返回同一个 Failure；ctx 取消时只停止分发
func (c *Client) StreamGenerate(ctx context.Context, req GenerateRequest, h StreamHandlers) *Failure {
	return c.stream(ctx, "/api/generate", req, h)
}

// StreamRetryFailed 只重试失败页面
func (c *Client) StreamRetryFailed(ctx context.Context, req RetryFailedRequest, h StreamHandlers) *Failure {
	return c.stream(ctx, "/api/retry-failed", req, h)
}

func (c *Client) stream(ctx context.Context, path string, body any, h StreamHandlers) *Failure {
	fail := func(f *Failure) *Failure {
		if ctx.Err() != nil {
			return &Failure{Kind: KindNetwork, Message: ctx.Err().Error()}
		}
		if h.OnStreamError != nil {
			h.OnStreamError(f)
		}
		return f
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return fail(&Failure{Kind: KindUnknown, Message: err.Error()})
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(transportFailure(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fail(statusFailure(resp.StatusCode, raw))
	}

	framer := sse.NewFramer(resp.Body)
	finished := false
	for {
		ev, err := framer.Next()
		if errors.Is(err, io.EOF) {
			if !finished {
				// 没有收到终止事件，未完成的页面保持原状态
				return fail(&Failure{Kind: KindNetwork, Message: "事件流在完成前中断"})
			}
			return nil
		}
		if err != nil {
			return fail(transportFailure(err))
		}
		if ctx.Err() != nil {
			return &Failure{Kind: KindNetwork, Message: ctx.Err().Error()}
		}
		if ev.Type == EventFinish || ev.Type == EventRetryFinish {
			finished = true
		}
		dispatch(ctx, ev, h)
	}
}

// dispatch 按事件类型解码并回调，坏数据记录日志后跳过
func dispatch(ctx context.Context, ev sse.Event, h StreamHandlers) {
	decode := func(v any) bool {
		if err := json.Unmarshal(ev.Data, v); err != nil {
			logger.Warn(ctx, "malformed sse payload", "event", ev.Type, "error", err.Error())
			return false
		}
		return true
	}

	switch ev.Type {
	case EventProgress:
		var p ProgressEvent
		if decode(&p) && h.OnProgress != nil {
			h.OnProgress(p)
		}
	case EventRetryStart:
		var p ProgressEvent
		if decode(&p) && h.OnProgress != nil {
			p.Status = EventRetryStart
			h.OnProgress(p)
		}
	case EventComplete:
		var p CompleteEvent
		if decode(&p) && h.OnComplete != nil {
			h.OnComplete(p)
		}
	case EventError:
		var p ErrorEvent
		if decode(&p) && h.OnError != nil {
			h.OnError(p)
		}
	case EventFinish, EventRetryFinish:
		var p FinishEvent
		if decode(&p) && h.OnFinish != nil {
			p.Retry = ev.Type == EventRetryFinish
			h.OnFinish(p)
		}
	default:
		logger.Debug(ctx, "unknown sse event skipped", "event", ev.Type)
	}
}
