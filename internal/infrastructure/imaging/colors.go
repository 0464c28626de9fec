package imaging

import (
	"fmt"
	"image"
	"sort"

	"golang.org/x/image/draw"
)

const (
	colorSampleSize = 100
	minFilteredPix  = 100
)

type rgb struct{ r, g, b uint8 }

// ExtractColors 提取 n 个主色，格式 #RRGGBB（大写）
// 缩放到 100x100，排除接近黑白或低饱和的像素，按 16 级量化后取频次最高者
func ExtractColors(data []byte, n int) ([]string, error) {
	src, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	small := image.NewRGBA(image.Rect(0, 0, colorSampleSize, colorSampleSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)

	all := make([]rgb, 0, colorSampleSize*colorSampleSize)
	filtered := make([]rgb, 0, cap(all))
	for y := 0; y < colorSampleSize; y++ {
		for x := 0; x < colorSampleSize; x++ {
			i := small.PixOffset(x, y)
			p := rgb{small.Pix[i], small.Pix[i+1], small.Pix[i+2]}
			all = append(all, p)
			if s, v := saturationValue(p); v > 0.1 && v < 0.9 && s > 0.1 {
				filtered = append(filtered, p)
			}
		}
	}
	if len(filtered) < minFilteredPix {
		filtered = all
	}

	counts := make(map[rgb]int)
	var order []rgb
	for _, p := range filtered {
		q := rgb{p.r / 16 * 16, p.g / 16 * 16, p.b / 16 * 16}
		if _, seen := counts[q]; !seen {
			order = append(order, q)
		}
		counts[q]++
	}

	// 频次相同按首次出现顺序
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]string, len(order))
	for i, c := range order {
		out[i] = fmt.Sprintf("#%02X%02X%02X", c.r, c.g, c.b)
	}
	return out, nil
}

// saturationValue HSV 中的 S 和 V
func saturationValue(p rgb) (float64, float64) {
	hi := max(p.r, p.g, p.b)
	lo := min(p.r, p.g, p.b)
	if hi == 0 {
		return 0, 0
	}
	return float64(hi-lo) / float64(hi), float64(hi) / 255
}
