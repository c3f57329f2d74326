package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Responder 负责写出 JSON 响应，编码失败时写日志。
type Responder struct {
	logger *zap.Logger
}

// NewResponder 创建响应器；logger 为 nil 时不输出日志。
func NewResponder(logger *zap.Logger) Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Responder{logger: logger}
}

// JSON 以给定状态码返回 payload。
func (r Responder) JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// 状态码已写出，只能记录
		r.logger.Warn("encode response body failed", zap.Int("status", status), zap.Error(err))
	}
}

// Error 返回 {"error": message}。
func (r Responder) Error(w http.ResponseWriter, status int, message string) {
	r.JSON(w, status, ErrorBody{Error: message})
}

// ErrorBody 是所有错误响应的结构。
type ErrorBody struct {
	Error string `json:"error"`
}
