package linkparser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassify(t *testing.T) {
	cases := map[string]SourceType{
		"https://mp.weixin.qq.com/s/abc":                   SourceWechat,
		"https://www.xiaohongshu.com/explore/64f0a1b2c3d4": SourceXiaohongshu,
		"http://xhslink.com/AbCd":                          SourceXiaohongshu,
		"https://example.com/post/1":                       SourceWeb,
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, Classify(u), raw)
	}
}

func TestIsURL(t *testing.T) {
	require.True(t, IsURL(" https://example.com/a "))
	require.False(t, IsURL("如何早起"))
	require.False(t, IsURL("ftp://example.com"))
	require.False(t, IsURL("https://"))
}

func TestParseWechat(t *testing.T) {
	page := `<html><head><meta property="og:title" content="OG 标题"></head><body>
<div id="js_content"><p>第一段   正文</p><p>第二段</p>
<img data-src="https://mmbiz.qpic.cn/mmbiz_png/a.png">
<img data-src="https://mmbiz.qpic.cn/mmbiz_png/a.png">
<img data-src="https://mmbiz.qpic.cn/mmbiz_jpg/b.jpg">
<img data-src="https://res.wx.qq.com/emoji.gif">
</div>
<script>var msg_title = '早起 &amp; 自律';
var msg_desc = "短摘要";</script>
</body></html>`

	res := ParseWechat(mustDoc(t, page), "https://mp.weixin.qq.com/s/x")
	require.True(t, res.Success)
	require.Equal(t, "早起 & 自律", res.Data.Title)
	require.Equal(t, "短摘要", res.Data.Desc)
	require.Equal(t, "第一段 正文第二段", res.Data.Text)
	require.Equal(t, []string{
		"https://mmbiz.qpic.cn/mmbiz_png/a.png",
		"https://mmbiz.qpic.cn/mmbiz_jpg/b.jpg",
	}, res.Data.Images)
	require.Equal(t, SourceWechat, res.Data.SourceType)
}

func TestParseWechatWithoutTitle(t *testing.T) {
	res := ParseWechat(mustDoc(t, `<html><body><p>nothing</p></body></html>`), "https://mp.weixin.qq.com/s/x")
	require.False(t, res.Success)
	require.Equal(t, FallbackManual, res.Fallback)
}

func TestParseXiaohongshuInitialState(t *testing.T) {
	page := `<html><head><title>小红书</title></head><body>
<script>window.__INITIAL_STATE__ = {"note":{"noteDetailMap":{"abc":{"note":{"title":"周末咖啡","desc":"三家店","imageList":[{"urlDefault":"https://sns/1.jpg"},{"url":"https://sns/2.jpg"},{"other":1}],"extra":undefined}}}}};</script>
</body></html>`

	res := ParseXiaohongshu(mustDoc(t, page), "https://www.xiaohongshu.com/explore/abc")
	require.True(t, res.Success)
	require.False(t, res.Partial)
	require.Equal(t, "周末咖啡", res.Data.Title)
	require.Equal(t, "三家店", res.Data.Text)
	require.Equal(t, []string{"https://sns/1.jpg", "https://sns/2.jpg"}, res.Data.Images)
}

func TestParseXiaohongshuMetaFallback(t *testing.T) {
	page := `<html><head><title>咖啡笔记</title><meta name="description" content="一段描述"></head><body></body></html>`

	res := ParseXiaohongshu(mustDoc(t, page), "https://www.xiaohongshu.com/explore/abc")
	require.True(t, res.Success)
	require.True(t, res.Partial)
	require.NotEmpty(t, res.Message)
	require.Equal(t, "咖啡笔记", res.Data.Title)
	require.Equal(t, "一段描述", res.Data.Text)
	require.Empty(t, res.Data.Images)
}

func TestParseOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/og":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head>
<meta property="og:title" content="开放图谱标题">
<meta property="og:description" content="摘要">
<meta property="og:image" content="https://cdn.example.com/cover.png">
</head><body></body></html>`))
		case "/empty":
			_, _ = w.Write([]byte(`<html><body></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := New(WithHTTPClient(srv.Client()))
	ctx := context.Background()

	res := p.Parse(ctx, srv.URL+"/og")
	require.True(t, res.Success)
	require.Equal(t, "开放图谱标题", res.Data.Title)
	require.Equal(t, "摘要", res.Data.Text)
	require.Equal(t, []string{"https://cdn.example.com/cover.png"}, res.Data.Images)
	require.Equal(t, SourceWeb, res.Data.SourceType)

	res = p.Parse(ctx, srv.URL+"/empty")
	require.False(t, res.Success)
	require.Equal(t, FallbackManual, res.Fallback)

	res = p.Parse(ctx, srv.URL+"/missing")
	require.False(t, res.Success)
	require.Equal(t, FallbackManual, res.Fallback)
	require.Contains(t, res.Error, "404")

	res = p.Parse(ctx, "not a url")
	require.False(t, res.Success)
	require.Equal(t, FallbackManual, res.Fallback)
}

func TestParseUsesClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><script>var msg_title = '公众号标题';</script></body></html>`))
	}))
	defer srv.Close()

	p := New(
		WithHTTPClient(srv.Client()),
		WithClassifier(func(*url.URL) SourceType { return SourceWechat }),
	)
	res := p.Parse(context.Background(), srv.URL)
	require.True(t, res.Success)
	require.Equal(t, "公众号标题", res.Data.Title)
	require.Equal(t, SourceWechat, res.Data.SourceType)
}

func TestFetchImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.jpg":
			_, _ = w.Write([]byte("aaa"))
		case "/b.jpg":
			_, _ = w.Write([]byte("bbb"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := New()
	urls := []string{srv.URL + "/a.jpg", srv.URL + "/missing.jpg", "not-a-url", srv.URL + "/b.jpg", srv.URL + "/c.jpg"}

	got := p.FetchImages(context.Background(), urls, 0)
	require.Equal(t, [][]byte{[]byte("aaa"), []byte("bbb")}, got)

	got = p.FetchImages(context.Background(), urls, 2)
	require.Equal(t, [][]byte{[]byte("aaa")}, got)
}
