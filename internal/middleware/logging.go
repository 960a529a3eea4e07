// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"xdp-service/internal/infra"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation    string `json:"operation"`
	CallerSID    string `json:"caller_sid"`
	DomainServer string `json:"domain_server,omitempty"`
	Result       string `json:"result"`
	Timestamp    string `json:"timestamp"`
}

// WriteAuditLog は鍵の払い出し判定の監査ログを出力し、メトリクスを更新する。
func WriteAuditLog(ctx context.Context, operation, callerSID, domainServer, result string) {
	infra.KeyReleases.WithLabelValues(result).Inc()
	slog.InfoContext(ctx, "key release decided",
		"operation", operation,
		"caller_sid", callerSID,
		"domain_server", domainServer,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
