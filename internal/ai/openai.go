package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIProvider struct {
	client *goopenai.Client
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Available() bool {
	return p.client != nil
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	msg, err := p.Chat(ctx, model, []Message{{Role: RoleUser, Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

func (p *openAIProvider) Chat(ctx context.Context, model string, msgs []Message, tools []ToolSpec) (*Message, error) {
	if p.client == nil {
		return nil, ErrUnavailable
	}
	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(msgs),
	}
	for _, tool := range tools {
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if p.client == nil {
		return nil, ErrUnavailable
	}
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai response has no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(msgs []Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted := goopenai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, goopenai.ToolCall{
				ID:   call.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func fromOpenAIMessage(msg goopenai.ChatCompletionMessage) *Message {
	out := &Message{
		Role:    msg.Role,
		Content: msg.Content,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		// Provider stays constructible so ingest/detect paths work without
		// credentials; calls report ErrUnavailable.
		return &openAIProvider{}, nil
	}
	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &openAIProvider{client: goopenai.NewClientWithConfig(clientConfig)}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
