package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/railsense/railsense/internal/ai"
	"github.com/railsense/railsense/internal/model"
)

// scriptedProvider returns pre-baked replies in order and records every
// message list it was handed.
type scriptedProvider struct {
	replies []ai.Message
	calls   [][]ai.Message
	err     error
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) Available() bool { return true }

func (p *scriptedProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return "", nil
}

func (p *scriptedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, model string, msgs []ai.Message, tools []ai.ToolSpec) (*ai.Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	copied := make([]ai.Message, len(msgs))
	copy(copied, msgs)
	p.calls = append(p.calls, copied)
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &reply, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeChunks struct {
	matches []model.ChunkMatch
}

func (f *fakeChunks) Nearest(ctx context.Context, embedding []float32, k int) ([]model.ChunkMatch, error) {
	return f.matches, nil
}

type fakePlotter struct {
	key string
}

func (f *fakePlotter) PlotAnalog(ctx context.Context, sensor string, from, to time.Time) (string, error) {
	return f.key, nil
}

func (f *fakePlotter) PlotDigital(ctx context.Context, sensor string, from, to time.Time) (string, error) {
	return f.key, nil
}

func newTestToolset(plotter Plotter) *Toolset {
	return NewToolset(nil, nil, nil, plotter, 5*time.Minute, 10)
}

func testOptions() Options {
	return Options{ChatModel: "m", EmbedModel: "e", TopK: 2, MaxRounds: 3}
}

func TestAgentRespondDirectAnswer(t *testing.T) {
	provider := &scriptedProvider{replies: []ai.Message{
		{Role: ai.RoleAssistant, Content: "  all clear  "},
	}}
	chunks := &fakeChunks{matches: []model.ChunkMatch{
		{Chunk: model.DocChunk{Content: "compressor maintenance notes"}, Distance: 0.1},
	}}
	agent := New(provider, fakeEmbedder{}, chunks, newTestToolset(&fakePlotter{}), testOptions())

	reply, err := agent.Respond(context.Background(), nil, "is everything ok?")
	require.NoError(t, err)
	require.Equal(t, "all clear", reply.Text)
	require.Empty(t, reply.ImageKey)

	// One system prompt, one retrieved-context message, one user message.
	require.Len(t, provider.calls, 1)
	msgs := provider.calls[0]
	require.Len(t, msgs, 3)
	require.Equal(t, ai.RoleSystem, msgs[0].Role)
	require.Contains(t, msgs[1].Content, "compressor maintenance notes")
	require.Equal(t, "is everything ok?", msgs[2].Content)
}

func TestAgentRespondRunsToolCall(t *testing.T) {
	call := ai.ToolCall{
		ID:   "call-1",
		Name: "plot_analog_sensor",
		Arguments: `{"sensor_name":"tp2",` +
			`"start_ts":"2025-03-01 00:00:00","end_ts":"2025-03-01 06:00:00"}`,
	}
	provider := &scriptedProvider{replies: []ai.Message{
		{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{call}},
		{Role: ai.RoleAssistant, Content: "here is the plot"},
	}}
	agent := New(provider, fakeEmbedder{}, &fakeChunks{}, newTestToolset(&fakePlotter{key: "abc.png"}), testOptions())

	reply, err := agent.Respond(context.Background(), nil, "plot tp2 around the anomaly")
	require.NoError(t, err)
	require.Equal(t, "here is the plot", reply.Text)
	require.Equal(t, "abc.png", reply.ImageKey)

	// The second round must carry the assistant's tool call and the tool
	// result back to the model.
	require.Len(t, provider.calls, 2)
	second := provider.calls[1]
	toolMsg := second[len(second)-1]
	require.Equal(t, ai.RoleTool, toolMsg.Role)
	require.Equal(t, "call-1", toolMsg.ToolCallID)
	require.Contains(t, toolMsg.Content, "plot rendered")
}

func TestAgentRespondIncludesHistory(t *testing.T) {
	provider := &scriptedProvider{replies: []ai.Message{
		{Role: ai.RoleAssistant, Content: "as I said"},
	}}
	agent := New(provider, fakeEmbedder{}, &fakeChunks{}, newTestToolset(&fakePlotter{}), testOptions())

	history := []model.ConversationTurn{
		{Role: model.RoleUser, Content: "first question"},
		{Role: model.RoleAssistant, Content: "first answer"},
		{Role: model.RoleAssistant, ImageKey: "img.png"}, // image turn has no text
	}
	_, err := agent.Respond(context.Background(), history, "follow up")
	require.NoError(t, err)

	msgs := provider.calls[0]
	require.Len(t, msgs, 4) // system, prior user, prior assistant, new user
	require.Equal(t, "first question", msgs[1].Content)
	require.Equal(t, "first answer", msgs[2].Content)
	require.Equal(t, "follow up", msgs[3].Content)
}

func TestAgentRespondEmptyInput(t *testing.T) {
	agent := New(&scriptedProvider{}, fakeEmbedder{}, &fakeChunks{}, newTestToolset(&fakePlotter{}), testOptions())
	_, err := agent.Respond(context.Background(), nil, "   ")
	require.Error(t, err)
}

func TestAgentRespondProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	agent := New(provider, fakeEmbedder{}, &fakeChunks{}, newTestToolset(&fakePlotter{}), testOptions())
	_, err := agent.Respond(context.Background(), nil, "hello")
	require.ErrorContains(t, err, "rate limited")
}

func TestAgentRespondRoundLimit(t *testing.T) {
	call := ai.ToolCall{
		ID:        "loop",
		Name:      "query_anomalies",
		Arguments: `{"start_ts":"2025-03-01 00:00:00","end_ts":"bogus"}`,
	}
	looping := ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{call}}
	provider := &scriptedProvider{replies: []ai.Message{looping, looping, looping}}
	agent := New(provider, fakeEmbedder{}, &fakeChunks{}, newTestToolset(&fakePlotter{}), testOptions())

	_, err := agent.Respond(context.Background(), nil, "loop forever")
	require.ErrorContains(t, err, "no final answer")
}
