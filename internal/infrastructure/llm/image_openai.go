package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"redink-api/internal/config"
)

var imageTracer = otel.Tracer("llm.image")

// OpenAIImageClient 基于 openai-go 的图片生成
type OpenAIImageClient struct {
	client  openai.Client
	model   string
	size    string
	quality string
	http    *http.Client
}

// NewOpenAIImageClient 创建客户端
func NewOpenAIImageClient(cfg *config.ImageConfig) *OpenAIImageClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIImageClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		size:    cfg.DefaultSize,
		quality: cfg.Quality,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *OpenAIImageClient) pick(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Generate 有参考图时走 edits 接口，否则走 generations
func (c *OpenAIImageClient) Generate(ctx context.Context, req ImageRequest) ([]byte, error) {
	modelName := c.pick(req.Model, c.model)
	ctx, span := imageTracer.Start(ctx, "image.generate", trace.WithAttributes(
		attribute.String("image.model", modelName),
		attribute.Int("image.references", len(req.References)),
	))
	defer span.End()

	if len(req.References) > 0 {
		files := make([]io.Reader, 0, len(req.References))
		for i, ref := range req.References {
			files = append(files, openai.File(bytes.NewReader(ref), fmt.Sprintf("reference_%d.png", i), "image/png"))
		}
		resp, err := c.client.Images.Edit(ctx, openai.ImageEditParams{
			Image:   openai.ImageEditParamsImageUnion{OfFileArray: files},
			Prompt:  req.Prompt,
			Model:   openai.ImageModel(modelName),
			Size:    openai.ImageEditParamsSize(c.pick(req.Size, c.size)),
			Quality: openai.ImageEditParamsQuality(c.pick(req.Quality, c.quality)),
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("image edit with references: %w", err)
		}
		return c.decode(ctx, resp)
	}

	params := openai.ImageGenerateParams{
		Prompt:  req.Prompt,
		Model:   openai.ImageModel(modelName),
		Size:    openai.ImageGenerateParamsSize(c.pick(req.Size, c.size)),
		Quality: openai.ImageGenerateParamsQuality(c.pick(req.Quality, c.quality)),
	}
	if strings.HasPrefix(modelName, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
		params.Quality = ""
	}
	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("image generate: %w", err)
	}
	return c.decode(ctx, resp)
}

// Edit 蒙版重绘
func (c *OpenAIImageClient) Edit(ctx context.Context, req EditRequest) ([]byte, error) {
	modelName := c.pick(req.Model, c.model)
	ctx, span := imageTracer.Start(ctx, "image.edit", trace.WithAttributes(
		attribute.String("image.model", modelName),
	))
	defer span.End()

	params := openai.ImageEditParams{
		Image:   openai.ImageEditParamsImageUnion{OfFile: openai.File(bytes.NewReader(req.Image), "image.png", "image/png")},
		Prompt:  req.Prompt,
		Model:   openai.ImageModel(modelName),
		Size:    openai.ImageEditParamsSize(c.pick(req.Size, "1024x1024")),
		Quality: openai.ImageEditParamsQuality(c.pick(req.Quality, c.quality)),
	}
	if len(req.Mask) > 0 {
		params.Mask = openai.File(bytes.NewReader(req.Mask), "mask.png", "image/png")
	}

	resp, err := c.client.Images.Edit(ctx, params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("image edit: %w", err)
	}
	return c.decode(ctx, resp)
}

// decode 优先 b64_json，其次下载 url
func (c *OpenAIImageClient) decode(ctx context.Context, resp *openai.ImagesResponse) ([]byte, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode b64_json: %w", err)
		}
		return data, nil
	}
	if img.URL == "" {
		return nil, ErrEmptyResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", res.StatusCode)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("download image: empty body")
	}
	return data, nil
}
