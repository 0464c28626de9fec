package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonFence      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseJSON 宽松解析模型输出中的 JSON 对象
// 依次尝试：原文、```json 代码块、首个 { 到最后一个 }、去掉尾随逗号
func ParseJSON(s string, v any) error {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return fmt.Errorf("%w: empty output", ErrParse)
	}

	candidates := []string{raw}
	if m := jsonFence.FindStringSubmatch(raw); len(m) == 2 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		if lastErr = json.Unmarshal([]byte(c), v); lastErr == nil {
			return nil
		}
	}
	for _, c := range candidates[1:] {
		cleaned := trailingCommas.ReplaceAllString(c, "$1")
		if lastErr = json.Unmarshal([]byte(cleaned), v); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrParse, lastErr)
}
