// Package prompt 管理内嵌的提示词模板
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptOutlineV1        PromptID = "outline_v1"
	PromptOutlineRewriteV1 PromptID = "outline_rewrite_v1"
	PromptContentV1        PromptID = "content_v1"
	PromptStyleWritingV1   PromptID = "style_writing_v1"
	PromptStyleVisualV1    PromptID = "style_visual_v1"

	// 单段模板，渲染为纯文本
	PromptImagePageV1      PromptID = "image_page_v1"
	PromptImagePageShortV1 PromptID = "image_page_short_v1"
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// ChatTemplate system + user 两段模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	systemPath, userPath, err := resolveChatFiles(id)
	if err != nil {
		return nil, err
	}
	return r.load(id, func() (einoprompt.ChatTemplate, error) {
		system, err := readEmbeddedText(systemPath)
		if err != nil {
			return nil, err
		}
		user, err := readEmbeddedText(userPath)
		if err != nil {
			return nil, err
		}
		return einoprompt.FromMessages(
			schema.FString,
			schema.SystemMessage(system),
			schema.UserMessage(user),
		), nil
	})
}

// Messages 渲染 system + user 消息
func (r *Registry) Messages(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}

// Render 渲染单段模板为文本
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) (string, error) {
	path, err := resolveTextFile(id)
	if err != nil {
		return "", err
	}
	tpl, err := r.load(id, func() (einoprompt.ChatTemplate, error) {
		text, err := readEmbeddedText(path)
		if err != nil {
			return nil, err
		}
		return einoprompt.FromMessages(schema.FString, schema.UserMessage(text)), nil
	})
	if err != nil {
		return "", err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format prompt %s: %w", id, err)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].Content, nil
}

func (r *Registry) load(id PromptID, build func() (einoprompt.ChatTemplate, error)) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	tpl, err := build()
	if err != nil {
		return nil, err
	}
	r.cache[id] = tpl
	return tpl, nil
}

func resolveChatFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptOutlineV1, PromptOutlineRewriteV1, PromptContentV1, PromptStyleWritingV1, PromptStyleVisualV1:
		return "templates/" + string(id) + ".system.txt", "templates/" + string(id) + ".user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown chat prompt id: %s", id)
	}
}

func resolveTextFile(id PromptID) (string, error) {
	switch id {
	case PromptImagePageV1, PromptImagePageShortV1:
		return "templates/" + string(id) + ".txt", nil
	default:
		return "", fmt.Errorf("unknown text prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
