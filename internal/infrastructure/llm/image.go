package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"redink-api/internal/config"
)

// ImageRequest 文生图请求，References 为参考图（封面、用户上传图）
type ImageRequest struct {
	Prompt     string
	Size       string
	Quality    string
	Model      string
	References [][]byte
}

// EditRequest 蒙版重绘请求，Mask 透明区域为待重绘区域
type EditRequest struct {
	Image   []byte
	Mask    []byte
	Prompt  string
	Size    string
	Quality string
	Model   string
}

// ImageProvider 图片生成后端
type ImageProvider interface {
	Generate(ctx context.Context, req ImageRequest) ([]byte, error)
	Edit(ctx context.Context, req EditRequest) ([]byte, error)
}

// NewImageProvider 按配置选择图片后端
func NewImageProvider(cfg *config.ImageConfig) (ImageProvider, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockImageProvider(cfg.DefaultSize), nil
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("image provider: %w", ErrMissingAPIKey)
		}
		return NewOpenAIImageClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported image provider %q", ErrConfig, cfg.Provider)
	}
}

// parseSize 解析 "1024x1536"
func parseSize(size string) (int, int, bool) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, false
	}
	wi, err1 := strconv.Atoi(w)
	hi, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return 0, 0, false
	}
	return wi, hi, true
}
