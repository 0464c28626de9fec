package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

// LogoStyle logo 叠加样式
type LogoStyle string

const (
	LogoStyleCorner    LogoStyle = "corner"
	LogoStyleWatermark LogoStyle = "watermark"
	LogoStyleBadge     LogoStyle = "badge"
)

type logoLayout struct {
	widthRatio float64
	alpha      uint8
}

var logoLayouts = map[LogoStyle]logoLayout{
	LogoStyleCorner:    {widthRatio: 0.18, alpha: 255},
	LogoStyleWatermark: {widthRatio: 0.35, alpha: 102},
	LogoStyleBadge:     {widthRatio: 0.15, alpha: 255},
}

// ParseLogoStyle 未知样式回退为 corner
func ParseLogoStyle(s string) LogoStyle {
	if _, ok := logoLayouts[LogoStyle(s)]; ok {
		return LogoStyle(s)
	}
	return LogoStyleCorner
}

// OverlayLogo 将 logo 按样式叠加到底图，输出 PNG
func OverlayLogo(base, logo []byte, style LogoStyle) ([]byte, error) {
	baseImg, _, err := Decode(base)
	if err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}
	logoImg, _, err := Decode(logo)
	if err != nil {
		return nil, fmt.Errorf("logo: %w", err)
	}

	layout, ok := logoLayouts[style]
	if !ok {
		layout = logoLayouts[LogoStyleCorner]
		style = LogoStyleCorner
	}

	bb := baseImg.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	draw.Draw(canvas, canvas.Bounds(), baseImg, bb.Min, draw.Src)

	lb := logoImg.Bounds()
	lw := max(1, int(float64(bb.Dx())*layout.widthRatio))
	lh := max(1, lb.Dy()*lw/max(1, lb.Dx()))
	scaled := image.NewRGBA(image.Rect(0, 0, lw, lh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), logoImg, lb, draw.Src, nil)

	margin := bb.Dx() * 3 / 100
	var at image.Point
	switch style {
	case LogoStyleWatermark:
		at = image.Pt((bb.Dx()-lw)/2, (bb.Dy()-lh)/2)
	case LogoStyleBadge:
		at = image.Pt(margin, margin)
	default:
		at = image.Pt(bb.Dx()-lw-margin, bb.Dy()-lh-margin)
	}

	target := image.Rectangle{Min: at, Max: at.Add(scaled.Bounds().Size())}
	if layout.alpha == 255 {
		draw.Draw(canvas, target, scaled, image.Point{}, draw.Over)
	} else {
		mask := image.NewUniform(color.Alpha{A: layout.alpha})
		draw.DrawMask(canvas, target, scaled, image.Point{}, mask, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
