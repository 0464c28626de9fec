package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const mockModelName = "mock-text"

// MockChatModel 离线确定性文本模型，按工作流返回固定格式的结果
type MockChatModel struct{}

var _ model.BaseChatModel = (*MockChatModel)(nil)

func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	cfg := &model.Config{Model: mockModelName}
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: input, Config: cfg})

	topic := mockTopic(input)
	content := m.respond(WorkflowFromContext(ctx), topic)
	out := schema.AssistantMessage(content, nil)

	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message: out,
		Config:  cfg,
		TokenUsage: &model.TokenUsage{
			PromptTokens:     utf8.RuneCountInString(topic),
			CompletionTokens: utf8.RuneCountInString(content),
			TotalTokens:      utf8.RuneCountInString(topic) + utf8.RuneCountInString(content),
		},
	})
	return out, nil
}

func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *MockChatModel) respond(workflow, topic string) string {
	switch workflow {
	case WorkflowOutline:
		return fmt.Sprintf("[封面]\n%s\n副标题：三分钟看懂\n<page>\n[内容]\n%s 的第一个要点\n<page>\n[内容]\n%s 的第二个要点\n<page>\n[总结]\n收藏这篇，下次不迷路", topic, topic, topic)
	case WorkflowOutlineRewrite:
		return mustJSON(map[string]any{
			"outline": "[封面]\n" + topic + "\n<page>\n[内容]\n改写要点\n<page>\n[总结]\n总结",
			"pages": []map[string]any{
				{"type": "cover", "content": topic},
				{"type": "content", "content": "改写要点"},
				{"type": "summary", "content": "总结"},
			},
		})
	case WorkflowContent:
		return "```json\n" + mustJSON(map[string]any{
			"titles":      []string{topic + "｜保姆级攻略", topic + "，一篇就够", "关于" + topic + "的真相"},
			"copywriting": "今天来聊聊" + topic + "。",
			"tags":        []string{"#" + topic, "#干货", "#分享"},
		}) + "\n```"
	case WorkflowStyleWriting:
		return mustJSON(map[string]any{
			"tone":       "亲切",
			"structure":  "总分总",
			"vocabulary": []string{"宝藏", "干货"},
			"summary":    "语气亲切，结构清晰",
		})
	case WorkflowStyleVisual:
		return mustJSON(map[string]any{
			"colors":  []string{"#E03030", "#FFFFFF"},
			"layout":  "大字标题",
			"summary": "高饱和暖色，大字标题",
		})
	}
	return topic
}

// mockTopic 取最后一条用户消息中 "主题：" 行，没有则取首行，最多 20 个字符
func mockTopic(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		msg := input[i]
		if msg == nil || msg.Role != schema.User {
			continue
		}
		text := msg.Content
		if text == "" {
			for _, p := range msg.MultiContent {
				if p.Type == schema.ChatMessagePartTypeText {
					text = p.Text
					break
				}
			}
		}
		text = topicLine(text)
		if r := []rune(text); len(r) > 20 {
			text = string(r[:20])
		}
		if text != "" {
			return text
		}
	}
	return "主题"
}

func topicLine(text string) string {
	lines := strings.Split(text, "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if v, ok := strings.CutPrefix(l, "主题："); ok {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(lines[0])
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
