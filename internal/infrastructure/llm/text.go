package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// TextClient 以工作流名义调用文本模型
type TextClient struct {
	factory  ChatModelFactory
	provider string
}

// NewTextClient provider 为空时使用工厂默认服务商
func NewTextClient(factory ChatModelFactory, provider string) *TextClient {
	return &TextClient{factory: factory, provider: provider}
}

// Generate 调用模型并返回去除首尾空白的文本
func (c *TextClient) Generate(ctx context.Context, workflow string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	ctx = WithWorkflowProvider(ctx, workflow, c.provider)

	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return "", err
	}

	// 直接调用组件时需要手动挂载全局回调
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      workflow,
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})

	out, err := chatModel.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Content), nil
}

// UserMessageWithImages 文本 + 多张图片的多模态用户消息
func UserMessageWithImages(text string, imageURLs []string) *schema.Message {
	if len(imageURLs) == 0 {
		return schema.UserMessage(text)
	}
	parts := make([]schema.ChatMessagePart, 0, len(imageURLs)+1)
	parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text})
	for _, u := range imageURLs {
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: u},
		})
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}
