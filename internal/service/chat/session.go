package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/backend"
	"github.com/zhouzirui/doctor-chat/internal/model/chat"
	"github.com/zhouzirui/doctor-chat/internal/observability/metrics"
)

const (
	// Greeting opens every conversation log.
	Greeting = "Hello! I'm here to help you book a doctor's appointment.\nHow can I assist you today?"
	// ServerErrorReply replaces the bot reply when an exchange fails.
	ServerErrorReply = "Server error. Please try again."
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrConversationEnded = errors.New("conversation has ended")
	ErrRequestInFlight   = errors.New("a message is already awaiting a reply")
	ErrDateInPast        = errors.New("date is before the earliest selectable date")
)

// IsRejection reports whether err means Send refused the message without contacting the backend.
func IsRejection(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrConversationEnded) ||
		errors.Is(err, ErrRequestInFlight) ||
		errors.Is(err, ErrDateInPast)
}

// Backend is the remote booking bot.
type Backend interface {
	Reset(ctx context.Context) error
	Chat(ctx context.Context, message string) (backend.ChatReply, error)
}

// Session is the client-side state machine of one conversation. All methods are safe
// for concurrent use; network calls run outside the lock.
type Session struct {
	id      string
	backend Backend
	logger  *zap.Logger
	metrics *metrics.ChatMetrics
	now     func() time.Time

	bootstrap sync.Once
	resetDone chan struct{}

	mu          sync.Mutex
	messages    []chat.Message
	state       chat.State
	mode        chat.InputMode
	pending     bool
	version     uint64
	createdAt   time.Time
	updatedAt   time.Time
	subscribers map[int]chan chat.Snapshot
	nextSub     int
	closed      bool
}

// Option customises a Session.
type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.ChatMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides time.Now; the picker's minimum date is derived from it.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession returns an Active session with an empty log. Call Bootstrap to greet.
func NewSession(b Backend, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		backend:     b,
		logger:      zap.NewNop(),
		now:         time.Now,
		messages:    make([]chat.Message, 0, 16),
		state:       chat.StateActive,
		mode:        chat.InputText,
		subscribers: make(map[int]chan chat.Snapshot),
		resetDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	s.updatedAt = s.createdAt
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Bootstrap appends the greeting and starts resetting the backend conversation in
// the background. It runs once and never waits for the reset; the reset is detached
// from ctx's cancellation so a finished HTTP request does not abort it.
// A reset failure is logged and otherwise ignored.
func (s *Session) Bootstrap(ctx context.Context) {
	s.bootstrap.Do(func() {
		s.mu.Lock()
		s.appendLocked(chat.SenderBot, Greeting)
		s.publishLocked()
		s.mu.Unlock()

		go s.reset(context.WithoutCancel(ctx))
	})
}

// ResetDone is closed once the bootstrap reset has finished, successfully or not.
func (s *Session) ResetDone() <-chan struct{} {
	return s.resetDone
}

func (s *Session) reset(ctx context.Context) {
	defer close(s.resetDone)

	err := s.backend.Reset(ctx)
	s.metrics.ObserveReset(backend.Outcome(err))
	if err != nil {
		s.logger.Warn("reset backend conversation failed",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("backend conversation reset", zap.String("session_id", s.id))
}

// Send appends the user's message, asks the backend for a reply and appends it.
//
// Rejections (empty text, ended conversation, request already in flight) leave the
// log untouched and return a zero Message. When the exchange itself fails the fixed
// error reply is appended and returned together with the transport error.
func (s *Session) Send(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	s.Bootstrap(ctx)
	// the first chat request must not overtake the reset
	select {
	case <-s.resetDone:
	case <-ctx.Done():
		return chat.Message{}, fmt.Errorf("wait for reset: %w", ctx.Err())
	}

	s.mu.Lock()
	if s.state == chat.StateEnded {
		s.mu.Unlock()
		s.metrics.ObserveRejected("ended")
		return chat.Message{}, ErrConversationEnded
	}
	if s.pending {
		s.mu.Unlock()
		s.metrics.ObserveRejected("in_flight")
		return chat.Message{}, ErrRequestInFlight
	}
	s.appendLocked(chat.SenderUser, text)
	s.mode = chat.InputText
	s.pending = true
	s.publishLocked()
	s.mu.Unlock()

	log := s.logger.With(zap.String("session_id", s.id))
	log.Debug("sending message", zap.Int("length", len(text)))

	start := time.Now()
	reply, err := s.backend.Chat(ctx, text)
	s.metrics.ObserveChat(backend.Outcome(err), time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false

	if err != nil {
		msg := s.appendLocked(chat.SenderBot, ServerErrorReply)
		s.publishLocked()
		log.Error("chat exchange failed", zap.String("outcome", backend.Outcome(err)), zap.Error(err))
		return msg, fmt.Errorf("exchange message: %w", err)
	}

	msg := s.appendLocked(chat.SenderBot, reply.Reply)
	if reply.ConversationEnd {
		s.state = chat.StateEnded
		s.mode = chat.InputText
		s.metrics.ObserveEnded()
		log.Info("conversation ended by backend")
	}
	s.publishLocked()
	return msg, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ended reports whether the backend closed the conversation.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == chat.StateEnded
}

// LastActivity returns the time of the most recent change.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Subscribe returns a channel that receives the current snapshot immediately and
// then one snapshot per change. A slow reader only ever sees the latest snapshot.
// The channel is closed by the returned cancel func or by Close.
func (s *Session) Subscribe() (<-chan chat.Snapshot, func()) {
	ch := make(chan chat.Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close detaches all subscribers. The session keeps its state but publishes nothing more.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub)
	}
}

func (s *Session) appendLocked(sender chat.Sender, text string) chat.Message {
	msg := chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// publishLocked bumps the version and hands the new snapshot to every subscriber,
// replacing a snapshot that has not been read yet.
func (s *Session) publishLocked() {
	s.version++
	s.updatedAt = s.now()
	if s.closed || len(s.subscribers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for _, sub := range s.subscribers {
		select {
		case sub <- snap:
		default:
			select {
			case <-sub:
			default:
			}
			sub <- snap
		}
	}
}

func (s *Session) snapshotLocked() chat.Snapshot {
	messages := make([]chat.Message, len(s.messages))
	copy(messages, s.messages)

	return chat.Snapshot{
		SessionID: s.id,
		Version:   s.version,
		Messages:  messages,
		State:     s.state,
		InputMode: s.mode,
		Pending:   s.pending,
		MinDate:   minSelectableDate(s.now()).Format(chat.DateLayout),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}
