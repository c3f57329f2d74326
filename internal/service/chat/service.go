package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/observability/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Service hosts the sessions of remote renderers, keyed by session id.
type Service struct {
	backend Backend
	logger  *zap.Logger
	metrics *metrics.ChatMetrics
	opts    []Option
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService builds an empty registry. opts are applied to every session it creates.
func NewService(b Backend, logger *zap.Logger, m *metrics.ChatMetrics, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:  b,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// CreateSession provisions and bootstraps a new session.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	session := s.newSession(uuid.NewString())
	session.Bootstrap(ctx)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveSessions(count)
	s.logger.Info("session created", zap.String("session_id", session.ID()))
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// RestartSession replaces the session under the same id with a fresh, bootstrapped one.
// Subscribers of the old session see their channel closed and should resubscribe.
func (s *Service) RestartSession(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	fresh := s.newSession(sessionID)
	fresh.Bootstrap(ctx)

	s.mu.Lock()
	old, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	s.sessions[sessionID] = fresh
	s.mu.Unlock()

	old.Close()
	s.logger.Info("session restarted", zap.String("session_id", sessionID))
	return fresh, nil
}

// DeleteSession forgets a session and detaches its subscribers.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	s.metrics.SetActiveSessions(count)
	return nil
}

// Count returns the number of hosted sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepIdle drops sessions idle for longer than ttl and returns how many were removed.
func (s *Service) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	var expired []*Session
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.LastActivity().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	if len(expired) > 0 {
		s.metrics.SetActiveSessions(count)
		s.logger.Info("idle sessions expired", zap.Int("expired", len(expired)), zap.Int("remaining", count))
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(ttl)
		}
	}
}

func (s *Service) newSession(id string) *Session {
	opts := make([]Option, 0, len(s.opts)+3)
	opts = append(opts, WithLogger(s.logger), WithMetrics(s.metrics))
	opts = append(opts, s.opts...)
	opts = append(opts, WithID(id))
	return NewSession(s.backend, opts...)
}
