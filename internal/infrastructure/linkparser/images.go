package linkparser

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"redink-api/pkg/logger"
)

const (
	downloadConcurrency = 5
	maxImageSize        = 10 << 20
)

// FetchImages 并发下载图片，最多取前 limit 个地址；失败的图片跳过，结果保持原顺序
func (p *Parser) FetchImages(ctx context.Context, urls []string, limit int) [][]byte {
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	results := make([][]byte, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			data, err := p.download(gctx, u)
			if err != nil {
				logger.Debug(ctx, "image download failed", "url", u, "error", err.Error())
				return nil
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()

	out := make([][]byte, 0, len(results))
	for _, r := range results {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	logger.Debug(ctx, "images downloaded", "requested", len(urls), "ok", len(out))
	return out
}

func (p *Parser) download(ctx context.Context, u string) ([]byte, error) {
	if !IsURL(u) {
		return nil, fmt.Errorf("invalid image url %q", u)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
}
