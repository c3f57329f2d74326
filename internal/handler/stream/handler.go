package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/doctor-chat/internal/model/chat"
	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler pushes session snapshots to the widget via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	logger    *zap.Logger
	respond   utils.Responder
	heartbeat time.Duration
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:   chatSvc,
		logger:    logger,
		respond:   utils.NewResponder(logger),
		heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes registers the event stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		h.respond.Error(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respond.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("sse stream opened", zap.String("session_id", sessionID))
	err := h.StreamSnapshots(r.Context(), sessionID, func(event string, data any) error {
		return utils.SendSSEEvent(w, flusher, event, data)
	}, func() error {
		return utils.SendSSEComment(w, flusher, "keep-alive")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("sse stream closed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// StreamSnapshots forwards every snapshot of the session to send until ctx is done or the
// session disappears. A restarted session is followed transparently.
func (h *Handler) StreamSnapshots(ctx context.Context, sessionID string, send func(event string, data any) error, ping func() error) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		session, err := h.chatSvc.GetSession(ctx, sessionID)
		if err != nil {
			_ = send("closed", map[string]string{"sessionId": sessionID})
			return err
		}

		updates, cancel := session.Subscribe()
		err = h.forward(ctx, updates, ticker.C, send, ping)
		cancel()
		if err != nil {
			return err
		}
		// channel closed: session restarted or deleted, look it up again
	}
}

func (h *Handler) forward(ctx context.Context, updates <-chan chat.Snapshot, tick <-chan time.Time, send func(string, any) error, ping func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if ping != nil {
				if err := ping(); err != nil {
					return err
				}
			}
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := send("snapshot", snap); err != nil {
				return err
			}
		}
	}
}
