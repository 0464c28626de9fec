// Package api 服务端 HTTP 接口的类型化客户端，所有调用返回 Result
package api

import "fmt"

// FailureKind 失败分类，取值与服务端 error_type 对齐
type FailureKind string

const (
	KindMissingAPIKey FailureKind = "missing_api_key"
	KindNoProvider    FailureKind = "no_provider"
	KindAuthFailed    FailureKind = "auth_failed"
	KindModelError    FailureKind = "model_error"
	KindNetwork       FailureKind = "network_error"
	KindRateLimit     FailureKind = "rate_limit"
	KindParse         FailureKind = "parse_error"
	KindConfig        FailureKind = "config_error"
	KindGeneration    FailureKind = "generation_error"
	KindNotFound      FailureKind = "not_found"
	KindUnknown       FailureKind = "unknown"
)

var knownKinds = map[FailureKind]bool{
	KindMissingAPIKey: true,
	KindNoProvider:    true,
	KindAuthFailed:    true,
	KindModelError:    true,
	KindNetwork:       true,
	KindRateLimit:     true,
	KindParse:         true,
	KindConfig:        true,
	KindGeneration:    true,
	KindNotFound:      true,
	KindUnknown:       true,
}

// ParseKind 未识别的取值归为 unknown
func ParseKind(s string) FailureKind {
	k := FailureKind(s)
	if knownKinds[k] {
		return k
	}
	return KindUnknown
}

// Failure 边界调用失败，Status 为 0 表示没有拿到 HTTP 响应
type Failure struct {
	Kind    FailureKind
	Message string
	Status  int
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NeedsConfiguration 需要引导用户去配置模型服务
func (f *Failure) NeedsConfiguration() bool {
	switch f.Kind {
	case KindMissingAPIKey, KindNoProvider, KindAuthFailed, KindModelError, KindConfig:
		return true
	}
	return false
}

// Retryable 网络、限流与单次生成失败可以直接重试
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindNetwork, KindRateLimit, KindGeneration:
		return true
	}
	return false
}

// Result 成功值或 Failure，二者恰有其一
type Result[T any] struct {
	value   T
	failure *Failure
}

// Ok 成功结果
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail 失败结果
func Fail[T any](f *Failure) Result[T] {
	if f == nil {
		f = &Failure{Kind: KindUnknown, Message: "unknown failure"}
	}
	return Result[T]{failure: f}
}

// OK 是否成功
func (r Result[T]) OK() bool {
	return r.failure == nil
}

// Value 成功值，失败时为零值
func (r Result[T]) Value() T {
	return r.value
}

// Failure 失败信息，成功时为 nil
func (r Result[T]) Failure() *Failure {
	return r.failure
}

// Unwrap 同时取出值与失败
func (r Result[T]) Unwrap() (T, *Failure) {
	return r.value, r.failure
}
