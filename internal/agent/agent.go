// Package agent implements the retrieval-augmented explanation loop: embed
// the question, retrieve document context, call the chat model with bound
// tools, execute tool calls until the model produces a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/ai"
	"github.com/railsense/railsense/internal/embedcache"
	"github.com/railsense/railsense/internal/model"
)

type ChunkSearcher interface {
	Nearest(ctx context.Context, embedding []float32, k int) ([]model.ChunkMatch, error)
}

type Options struct {
	ChatModel  string
	EmbedModel string
	TopK       int
	MaxRounds  int
	Timeout    time.Duration
}

type Agent struct {
	provider ai.IChatProvider
	embedder embedcache.Embedder
	chunks   ChunkSearcher
	tools    *Toolset
	opts     Options
}

// Reply is the agent's final answer for one user message, with at most one
// rendered plot attached.
type Reply struct {
	Text     string
	ImageKey string
}

func New(provider ai.IChatProvider, embedder embedcache.Embedder, chunks ChunkSearcher, tools *Toolset, opts Options) *Agent {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}
	return &Agent{provider: provider, embedder: embedder, chunks: chunks, tools: tools, opts: opts}
}

// Respond drives one pass of the loop. history carries the session's prior
// user/assistant turns so follow-up questions keep their context. Errors
// from the hosted service come back as errors; the caller turns them into
// a conversational message rather than dropping the session.
func (a *Agent) Respond(ctx context.Context, history []model.ConversationTurn, userInput string) (*Reply, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, errors.New("message is required")
	}
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx)

	msgs := []ai.Message{{Role: ai.RoleSystem, Content: systemPrompt}}
	if contextMsg, err := a.retrieveContext(ctx, userInput); err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	} else if contextMsg != "" {
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: contextMsg})
	}
	for _, turn := range history {
		switch turn.Role {
		case model.RoleUser:
			msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: turn.Content})
		case model.RoleAssistant:
			if turn.Content != "" {
				msgs = append(msgs, ai.Message{Role: ai.RoleAssistant, Content: turn.Content})
			}
		}
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: userInput})

	var imageKey string
	for round := 0; round < a.opts.MaxRounds; round++ {
		reply, err := a.provider.Chat(ctx, a.opts.ChatModel, msgs, a.tools.Specs())
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if len(reply.ToolCalls) == 0 {
			return &Reply{Text: strings.TrimSpace(reply.Content), ImageKey: imageKey}, nil
		}
		msgs = append(msgs, *reply)
		for _, call := range reply.ToolCalls {
			logger.Info("tool call", zap.String("tool", call.Name), zap.Int("round", round))
			result, key, err := a.tools.Execute(ctx, call)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", call.Name, err)
			}
			if key != "" {
				imageKey = key
			}
			msgs = append(msgs, ai.Message{
				Role:       ai.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}
	return nil, fmt.Errorf("no final answer after %d tool rounds", a.opts.MaxRounds)
}

// retrieveContext embeds the question and packs the nearest chunks into one
// system message. No indexed chunks is not an error; the agent just answers
// from the detection tools alone.
func (a *Agent) retrieveContext(ctx context.Context, query string) (string, error) {
	vec, err := a.embedder.Embed(ctx, a.opts.EmbedModel, query)
	if err != nil {
		return "", err
	}
	matches, err := a.chunks.Nearest(ctx, vec, a.opts.TopK)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		logutil.GetLogger(ctx).Warn("retrieval returned no chunks")
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(contextPrefix)
	for _, match := range matches {
		sb.WriteString("\n\n")
		sb.WriteString(match.Chunk.Content)
	}
	logutil.GetLogger(ctx).Debug("context retrieved",
		zap.Int("chunks", len(matches)),
		zap.Float64("top_distance", matches[0].Distance),
	)
	return sb.String(), nil
}
