package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/utils"
)

const (
	writeWait = 10 * time.Second
	// maxFrameBytes 限制客户端单条消息大小
	maxFrameBytes = 64 << 10
)

// WebSocketHandler WebSocket双向会话处理器
type WebSocketHandler struct {
	stream   *Handler
	chatSvc  *chatService.Service
	logger   *zap.Logger
	respond  utils.Responder
	upgrader websocket.Upgrader
	loc      *time.Location
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(stream *Handler, chatSvc *chatService.Service, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		stream:  stream,
		chatSvc: chatSvc,
		logger:  logger,
		respond: utils.NewResponder(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		loc: time.Local,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"` // "message", "date", "picker", "restart"
	Text string `json:"text,omitempty"`
	Date string `json:"date,omitempty"`
	Open bool   `json:"open,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"` // "snapshot", "error", "closed"
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsWriter serialises writes; gorilla connections allow a single concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(msg outgoingMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg.Timestamp = time.Now().UnixMilli()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(msg)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		h.respond.Error(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writer := &wsWriter{conn: conn}
	log := h.logger.With(zap.String("session_id", sessionID))
	log.Debug("websocket opened")

	go func() {
		defer cancel()
		h.readLoop(ctx, conn, writer, sessionID, log)
	}()

	err = h.stream.StreamSnapshots(ctx, sessionID, func(event string, data any) error {
		return writer.write(outgoingMessage{Type: event, Data: data})
	}, writer.ping)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("websocket stream ended", zap.Error(err))
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, writer *wsWriter, sessionID string, log *zap.Logger) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = writer.write(outgoingMessage{Type: "error", Error: "invalid message"})
			continue
		}

		// 每条指令独立执行，等待回复期间的新消息会被单飞保护拒绝。
		go func(msg inboundMessage) {
			if err := h.dispatch(ctx, sessionID, msg); err != nil {
				_ = writer.write(outgoingMessage{Type: "error", Error: err.Error()})
			}
		}(msg)
	}
}

// dispatch applies one inbound command. Only rejections are reported back; exchange
// failures already show up in the log as the fixed error reply.
func (h *WebSocketHandler) dispatch(ctx context.Context, sessionID string, msg inboundMessage) error {
	if msg.Type == "restart" {
		_, err := h.chatSvc.RestartSession(ctx, sessionID)
		return err
	}

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch msg.Type {
	case "message":
		_, err = session.Send(ctx, msg.Text)
	case "date":
		date, parseErr := chatService.ParseDate(msg.Date, h.loc)
		if parseErr != nil {
			return errors.New("date must be formatted as YYYY-MM-DD")
		}
		_, err = session.SelectDate(ctx, date)
	case "picker":
		if msg.Open {
			return session.OpenDatePicker()
		}
		session.CloseDatePicker()
		return nil
	default:
		return errors.New("unknown message type")
	}

	if err != nil && !chatService.IsRejection(err) {
		h.logger.Warn("websocket exchange failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return err
}
