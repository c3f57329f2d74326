package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/doctor-chat/internal/service/chat"
	"github.com/zhouzirui/doctor-chat/pkg/utils"
)

// maxBodyBytes 限制请求体大小，消息通常只有几百个字符。
const maxBodyBytes = 64 << 10

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
	respond utils.Responder
	loc     *time.Location
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
		respond: utils.NewResponder(logger),
		loc:     time.Local,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(sr chi.Router) {
		sr.Get("/", h.handleGetSession)
		sr.Delete("/", h.handleDeleteSession)
		sr.Post("/messages", h.handleSendMessage)
		sr.Post("/date-picker", h.handleDatePicker)
		sr.Post("/date", h.handleSelectDate)
		sr.Post("/restart", h.handleRestart)
	})
}

// handleCreateSession 创建会话并发送问候语
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		h.respond.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.respond.JSON(w, http.StatusCreated, session.Snapshot())
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond.JSON(w, http.StatusOK, session.Snapshot())
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage 发送用户消息并等待机器人回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if _, err := session.Send(r.Context(), payload.Message); err != nil {
		if chatService.IsRejection(err) {
			h.respondServiceError(w, err)
			return
		}
		// 交换失败时错误提示已写入消息记录，照常返回快照。
		h.logger.Warn("message exchange failed", zap.String("session_id", session.ID()), zap.Error(err))
	}

	h.respond.JSON(w, http.StatusOK, session.Snapshot())
}

// handleDatePicker 打开或关闭日期选择器
func (h *Handler) handleDatePicker(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Open bool `json:"open"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if payload.Open {
		if err := session.OpenDatePicker(); err != nil {
			h.respondServiceError(w, err)
			return
		}
	} else {
		session.CloseDatePicker()
	}

	h.respond.JSON(w, http.StatusOK, session.Snapshot())
}

// handleSelectDate 选择日期并发送预约请求
func (h *Handler) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Date string `json:"date"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	date, err := chatService.ParseDate(payload.Date, h.loc)
	if err != nil {
		h.respond.Error(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if _, err := session.SelectDate(r.Context(), date); err != nil {
		if chatService.IsRejection(err) {
			h.respondServiceError(w, err)
			return
		}
		h.logger.Warn("date request exchange failed", zap.String("session_id", session.ID()), zap.Error(err))
	}

	h.respond.JSON(w, http.StatusOK, session.Snapshot())
}

// handleRestart 开始新的对话
func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.RestartSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return session, true
}

// decode 读取有大小上限的 JSON 请求体，失败时已写出错误响应。
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respond.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respond.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondServiceError 将业务错误映射为HTTP状态码
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, chatService.ErrConversationEnded), errors.Is(err, chatService.ErrRequestInFlight):
		status = http.StatusConflict
	case errors.Is(err, chatService.ErrDateInPast):
		status = http.StatusUnprocessableEntity
	}
	h.respond.Error(w, status, err.Error())
}
