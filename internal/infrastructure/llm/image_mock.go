package llm

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
)

// MockImageProvider 离线图片后端：按提示词哈希生成纯色 PNG，尺寸为请求的 1/4
type MockImageProvider struct {
	size  string
	calls atomic.Int64
}

var _ ImageProvider = (*MockImageProvider)(nil)

func NewMockImageProvider(defaultSize string) *MockImageProvider {
	return &MockImageProvider{size: defaultSize}
}

// Calls 已处理的请求数
func (p *MockImageProvider) Calls() int64 {
	return p.calls.Load()
}

func (p *MockImageProvider) Generate(ctx context.Context, req ImageRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.calls.Add(1)
	size := req.Size
	if size == "" {
		size = p.size
	}
	return solidPNG(size, req.Prompt)
}

func (p *MockImageProvider) Edit(ctx context.Context, req EditRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.calls.Add(1)
	return solidPNG(req.Size, "edit:"+req.Prompt)
}

func solidPNG(size, seed string) ([]byte, error) {
	w, h, ok := parseSize(size)
	if !ok {
		w, h = 1024, 1536
	}
	w, h = max(1, w/4), max(1, h/4)

	hash := fnv.New32a()
	_, _ = hash.Write([]byte(seed))
	sum := hash.Sum32()
	c := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
