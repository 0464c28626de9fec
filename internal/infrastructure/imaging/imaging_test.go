package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnail_LongEdge(t *testing.T) {
	src := solidPNG(t, 1024, 1536, color.RGBA{R: 200, A: 255})

	out, err := Thumbnail(src, 400)
	require.NoError(t, err)

	img, format, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 266, img.Bounds().Dx())
	require.Equal(t, 400, img.Bounds().Dy())

	// 小图不放大
	small := solidPNG(t, 50, 20, color.White)
	out, err = Thumbnail(small, 400)
	require.NoError(t, err)
	img, _, err = Decode(out)
	require.NoError(t, err)
	require.Equal(t, 50, img.Bounds().Dx())
}

func TestExtractColors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			switch {
			case x < 120:
				img.Set(x, y, color.RGBA{R: 0xE0, G: 0x30, B: 0x30, A: 255})
			case x < 180:
				img.Set(x, y, color.RGBA{R: 0x30, G: 0x30, B: 0xC0, A: 255})
			default:
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	colors, err := ExtractColors(buf.Bytes(), 5)
	require.NoError(t, err)
	require.NotEmpty(t, colors)
	require.LessOrEqual(t, len(colors), 5)
	require.Equal(t, "#E03030", colors[0])
	for _, c := range colors {
		require.Regexp(t, `^#[0-9A-F]{6}$`, c)
		require.NotEqual(t, "#F0F0F0", c)
	}
}

func TestExtractColors_FallbackToAllPixels(t *testing.T) {
	colors, err := ExtractColors(solidPNG(t, 64, 64, color.White), 5)
	require.NoError(t, err)
	require.Equal(t, []string{"#F0F0F0"}, colors)
}

func TestOverlayLogo(t *testing.T) {
	base := solidPNG(t, 1000, 1000, color.White)
	logo := solidPNG(t, 100, 50, color.RGBA{B: 255, A: 255})

	out, err := OverlayLogo(base, logo, LogoStyleCorner)
	require.NoError(t, err)
	img, format, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 1000, img.Bounds().Dx())

	// corner: 180x90，右下角留 3% 边距
	requireBlue(t, img.At(1000-30-90, 1000-30-45))
	r, _, _, _ := img.At(10, 10).RGBA()
	require.Equal(t, uint32(0xffff), r)

	out, err = OverlayLogo(base, logo, LogoStyleBadge)
	require.NoError(t, err)
	img, _, err = Decode(out)
	require.NoError(t, err)
	requireBlue(t, img.At(40, 40))

	// watermark 半透明
	out, err = OverlayLogo(base, logo, LogoStyleWatermark)
	require.NoError(t, err)
	img, _, err = Decode(out)
	require.NoError(t, err)
	r, _, _, _ = img.At(500, 500).RGBA()
	require.Greater(t, r, uint32(0))
	require.Less(t, r, uint32(0xffff))
}

func requireBlue(t *testing.T, c color.Color) {
	t.Helper()
	r, g, b, _ := c.RGBA()
	require.Less(t, r, uint32(0x1000))
	require.Less(t, g, uint32(0x1000))
	require.Greater(t, b, uint32(0xf000))
}

func TestParseLogoStyle(t *testing.T) {
	require.Equal(t, LogoStyleWatermark, ParseLogoStyle("watermark"))
	require.Equal(t, LogoStyleCorner, ParseLogoStyle(""))
	require.Equal(t, LogoStyleCorner, ParseLogoStyle("unknown"))
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64("data:image/png;base64," + enc)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	got, err = DecodeBase64(enc)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = DecodeBase64("data:image/png;base64")
	require.Error(t, err)
}
