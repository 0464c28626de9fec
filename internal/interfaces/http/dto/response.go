package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"redink-api/internal/infrastructure/llm"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
)

// ErrorResponse 失败响应
type ErrorResponse struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error"`
	ErrorType llm.ErrorType `json:"error_type,omitempty"`
	Code      string        `json:"code,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// Success 返回 200，fields 与 success:true 合并
func Success(c *gin.Context, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// JSON 返回自带 success 字段的结构体
func JSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// Fail 返回指定状态码的失败响应
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   message,
		TraceID: c.GetString("trace_id"),
	})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}

// Error 按 AppError 映射状态码，其余错误返回 500
func Error(c *gin.Context, err error) {
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		msg := appErr.Message
		if appErr.Detail != "" {
			msg = appErr.Detail
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed", err)
		}
		c.JSON(appErr.HTTPStatus, ErrorResponse{
			Success: false,
			Error:   msg,
			Code:    string(appErr.Code),
			TraceID: c.GetString("trace_id"),
		})
		return
	}
	logger.Error(c.Request.Context(), "request failed", err)
	Fail(c, http.StatusInternalServerError, err.Error())
}

// AIError AI 接口失败：应用错误按原样返回，模型相关错误附带 error_type
func AIError(c *gin.Context, err error) {
	if apperrors.IsAppError(err) {
		Error(c, err)
		return
	}
	t := llm.ClassifyError(err)
	logger.Warn(c.Request.Context(), "ai request failed", "error_type", t, "error", err.Error())
	status := http.StatusInternalServerError
	if t == llm.ErrorTypeConfig {
		status = http.StatusBadRequest
	}
	c.JSON(status, ErrorResponse{
		Success:   false,
		Error:     llm.DescribeError(t, err),
		ErrorType: t,
		TraceID:   c.GetString("trace_id"),
	})
}
