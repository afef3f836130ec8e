// Package ai abstracts the hosted generation/embedding services behind a
// provider registry. Providers self-register from init so the config's
// `ai.provider` string is the only switch.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnavailable = errors.New("ai provider not configured")

// IProvider is the minimum surface every provider offers. Available
// reports whether credentials were resolved; the serve path treats an
// unavailable provider as a startup error, batch paths don't care.
type IProvider interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, model string, prompt string) (string, error)
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// IChatProvider adds multi-turn chat with model-initiated tool calls. Only
// providers implementing this can back the explanation agent.
type IChatProvider interface {
	IProvider
	Chat(ctx context.Context, model string, msgs []Message, tools []ToolSpec) (*Message, error)
}

type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as produced by the model
}

type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
