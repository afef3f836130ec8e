package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/agent"
	"github.com/railsense/railsense/internal/model"
	appErr "github.com/railsense/railsense/internal/pkg/errors"
)

const greeting = "What can I help you with today?"

type session struct {
	id         string
	turns      []model.ConversationTurn
	lastActive time.Time
}

// ChatService owns the in-memory conversation state. Turns live only as
// long as their session; an idle sweeper drops expired sessions wholesale.
type ChatService struct {
	agent   *agent.Agent
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func NewChatService(agent *agent.Agent, idleTTL time.Duration) *ChatService {
	return &ChatService{
		agent:    agent,
		idleTTL:  idleTTL,
		sessions: make(map[string]*session),
	}
}

// CreateSession registers a new conversation seeded with the greeting and
// returns its id.
func (s *ChatService) CreateSession(ctx context.Context) string {
	id := newSessionID()
	now := time.Now()
	s.mu.Lock()
	s.sessions[id] = &session{
		id: id,
		turns: []model.ConversationTurn{
			{Role: model.RoleAssistant, Content: greeting, Ts: now},
		},
		lastActive: now,
	}
	s.mu.Unlock()
	logutil.GetLogger(ctx).Info("session created", zap.String("session_id", id))
	return id
}

// Respond appends the user's turn, runs the agent, and appends the reply.
// Agent failures become an assistant-visible error turn instead of killing
// the session; only an unknown session is an error to the caller.
func (s *ChatService) Respond(ctx context.Context, sessionID string, message string) (*agent.Reply, error) {
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reply, agentErr := s.agent.Respond(ctx, history, message)
	if agentErr != nil {
		logutil.GetLogger(ctx).Error("agent failed",
			zap.String("session_id", sessionID),
			zap.Error(agentErr),
		)
		reply = &Reply{
			Text: "Sorry, something went wrong while answering: " + agentErr.Error(),
		}
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	sess.turns = append(sess.turns, model.ConversationTurn{
		Role:    model.RoleUser,
		Content: message,
		Ts:      now,
	})
	sess.turns = append(sess.turns, model.ConversationTurn{
		Role:    model.RoleAssistant,
		Content: reply.Text,
		Ts:      now,
	})
	if reply.ImageKey != "" {
		sess.turns = append(sess.turns, model.ConversationTurn{
			Role:     model.RoleAssistant,
			ImageKey: reply.ImageKey,
			Ts:       now,
		})
	}
	sess.lastActive = now
	return reply, nil
}

// History returns a copy of the session's turns.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	out := make([]model.ConversationTurn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// StartSweeper evicts idle sessions until ctx is done.
func (s *ChatService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *ChatService) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleTTL)
	s.mu.Lock()
	var evicted int
	for id, sess := range s.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.mu.Unlock()
	if evicted > 0 {
		logutil.GetLogger(ctx).Info("idle sessions evicted", zap.Int("count", evicted))
	}
}

func newSessionID() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:])
}

// Reply aliases the agent's reply so handlers need not import the agent
// package directly.
type Reply = agent.Reply
