package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"redink-api/internal/config"
)

const (
	defaultOutlineTimeout = 300 * time.Second
	defaultStyleTimeout   = 300 * time.Second
	defaultContentTimeout = 120 * time.Second
	defaultCRUDTimeout    = 10 * time.Second

	maxErrorBody = 1 << 20
)

// Options 客户端选项，超时按请求类型区分，流式请求没有整体超时
type Options struct {
	BaseURL        string
	OutlineTimeout time.Duration
	StyleTimeout   time.Duration
	ContentTimeout time.Duration
	CRUDTimeout    time.Duration
	HTTPClient     *http.Client
}

// OptionsFromConfig 从 client 配置段构造选项
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		OutlineTimeout: cfg.OutlineTimeout,
		StyleTimeout:   cfg.StyleTimeout,
		ContentTimeout: cfg.ContentTimeout,
		CRUDTimeout:    cfg.CRUDTimeout,
	}
}

// Client 服务端 HTTP 客户端
type Client struct {
	base string
	opts Options
	http *http.Client
}

// New 创建客户端
func New(opts Options) *Client {
	if opts.OutlineTimeout <= 0 {
		opts.OutlineTimeout = defaultOutlineTimeout
	}
	if opts.StyleTimeout <= 0 {
		opts.StyleTimeout = defaultStyleTimeout
	}
	if opts.ContentTimeout <= 0 {
		opts.ContentTimeout = defaultContentTimeout
	}
	if opts.CRUDTimeout <= 0 {
		opts.CRUDTimeout = defaultCRUDTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		opts: opts,
		http: hc,
	}
}

// URL 拼接服务端地址
func (c *Client) URL(path string) string {
	return c.base + path
}

// envelope 失败响应的公共字段
type envelope struct {
	Success   *bool  `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// transportFailure 传输层错误统一为 network_error
func transportFailure(err error) *Failure {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "请求超时"
	}
	return &Failure{Kind: KindNetwork, Message: msg}
}

// statusFailure 把非 2xx 响应转换为 Failure
func statusFailure(status int, body []byte) *Failure {
	var env envelope
	_ = json.Unmarshal(body, &env)

	f := &Failure{Kind: ParseKind(env.ErrorType), Message: env.Error, Status: status}
	if env.ErrorType == "" {
		switch {
		case status == http.StatusNotFound:
			f.Kind = KindNotFound
		case status == http.StatusTooManyRequests:
			f.Kind = KindRateLimit
		}
	}
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}
	return f
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// send 发送请求并读取完整响应体
func (c *Client) send(req *http.Request, timeout time.Duration) (http.Header, []byte, *Failure) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, transportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, nil, transportFailure(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return resp.Header, body, statusFailure(resp.StatusCode, body)
	}
	return resp.Header, body, nil
}

// call 发送 JSON 请求并把响应解码为 T
func call[T any](ctx context.Context, c *Client, timeout time.Duration, method, path string, body any) Result[T] {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return Fail[T](&Failure{Kind: KindUnknown, Message: err.Error()})
	}
	_, raw, failure := c.send(req, timeout)
	if failure != nil {
		return Fail[T](failure)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return Fail[T](&Failure{Kind: KindParse, Message: "响应解析失败: " + err.Error()})
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil && env.Success != nil && !*env.Success {
		return Fail[T](&Failure{Kind: ParseKind(env.ErrorType), Message: env.Error})
	}
	return Ok(out)
}

// lenient 与 call 相同，但 2xx 响应中的 success=false 不视为失败
func lenient[T any](ctx context.Context, c *Client, timeout time.Duration, method, path string, body any) Result[T] {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return Fail[T](&Failure{Kind: KindUnknown, Message: err.Error()})
	}
	_, raw, failure := c.send(req, timeout)
	if failure != nil {
		return Fail[T](failure)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return Fail[T](&Failure{Kind: KindParse, Message: "响应解析失败: " + err.Error()})
	}
	return Ok(out)
}
