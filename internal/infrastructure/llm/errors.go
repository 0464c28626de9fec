package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrorType AI 接口失败分类，随响应体的 error_type 返回
type ErrorType string

const (
	ErrorTypeMissingAPIKey ErrorType = "missing_api_key"
	ErrorTypeNoProvider    ErrorType = "no_provider"
	ErrorTypeAuthFailed    ErrorType = "auth_failed"
	ErrorTypeModel         ErrorType = "model_error"
	ErrorTypeNetwork       ErrorType = "network_error"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeParse         ErrorType = "parse_error"
	ErrorTypeConfig        ErrorType = "config_error"
	ErrorTypeGeneration    ErrorType = "generation_error"
	ErrorTypeUnknown       ErrorType = "unknown"
)

var (
	ErrMissingAPIKey = errors.New("未配置 API Key")
	ErrNoProvider    = errors.New("未找到任何文本生成服务商配置")
	ErrParse         = errors.New("模型输出解析失败")
	ErrConfig        = errors.New("配置错误")
	ErrEmptyResponse = errors.New("模型返回为空")
)

// ClassifyError 按错误链与错误信息归类
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return ErrorTypeMissingAPIKey
	case errors.Is(err, ErrNoProvider):
		return ErrorTypeNoProvider
	case errors.Is(err, ErrParse):
		return ErrorTypeParse
	case errors.Is(err, ErrConfig):
		return ErrorTypeConfig
	case errors.Is(err, ErrEmptyResponse):
		return ErrorTypeGeneration
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api_key") || strings.Contains(msg, "api key"):
		return ErrorTypeMissingAPIKey
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		return ErrorTypeAuthFailed
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "quota"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "model") || strings.Contains(msg, "404"):
		return ErrorTypeModel
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "连接") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// NeedsConfiguration 是否需要用户修改服务商配置
func (t ErrorType) NeedsConfiguration() bool {
	switch t {
	case ErrorTypeMissingAPIKey, ErrorTypeNoProvider, ErrorTypeAuthFailed, ErrorTypeModel, ErrorTypeConfig:
		return true
	}
	return false
}

// DescribeError 面向用户的错误说明
func DescribeError(t ErrorType, err error) string {
	switch t {
	case ErrorTypeMissingAPIKey:
		return "请先配置 API Key\n\n请在配置文件中为当前服务商填写 api_key。"
	case ErrorTypeNoProvider:
		return "未配置文本生成服务商\n\n请在配置文件 llm.providers 中添加服务商。"
	case ErrorTypeAuthFailed:
		return "API 认证失败\n\nAPI Key 无效或已过期，请检查并更新。"
	case ErrorTypeModel:
		return "模型访问失败\n\n模型名称可能不正确，请检查配置。"
	case ErrorTypeNetwork:
		return "网络连接失败\n\n请检查网络连接，或稍后重试。"
	case ErrorTypeRateLimit:
		return "API 配额限制\n\nAPI 调用次数超限，请等待配额重置或升级套餐。"
	}
	if err == nil {
		return "未知错误"
	}
	return err.Error()
}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
func (e *configError) Unwrap() error { return ErrConfig }

// ConfigError 归类为 config_error 的错误，Error() 只返回 msg
func ConfigError(msg string) error {
	return &configError{msg: msg}
}
