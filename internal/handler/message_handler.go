// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"xdp-service/internal/domain"
	"xdp-service/internal/middleware"
	"xdp-service/internal/xcrypto"
	"xdp-service/pkg/httputil"
)

// MaxMessageSize は受け付けるメッセージ本文の上限。
const MaxMessageSize = 4 << 20

// MessageProcessor はドメインサービスのメッセージを処理する。
type MessageProcessor interface {
	Process(ctx context.Context, caller domain.Principal, data []byte) ([]byte, error)
}

// MessageHandler は鍵交換メッセージを受け付ける。
type MessageHandler struct {
	processor MessageProcessor
}

// NewMessageHandler は新しいMessageHandlerを生成する。
func NewMessageHandler(processor MessageProcessor) *MessageHandler {
	return &MessageHandler{processor: processor}
}

// HandleMessage はメッセージを処理して応答を返す。
// 処理の失敗は XDPExceptionResponse として 200 で返る。
func (h *MessageHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerIdentity(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "caller is not authenticated")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "MESSAGE_TOO_LARGE", "message exceeds the size limit")
			return
		}
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", "failed to read message body")
		return
	}
	if len(body) == 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", "message body is empty")
		return
	}
	// 要求と応答の本文はキーバンドルを16進で含みうる
	defer xcrypto.Zero(body)

	resp, err := h.processor.Process(r.Context(), caller, body)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to serialize response",
			"operation", "handle_message",
			"caller_sid", caller.SID,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	httputil.XML(w, http.StatusOK, resp)
	xcrypto.Zero(resp)
}
