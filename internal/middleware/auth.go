package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"xdp-service/internal/domain"
	"xdp-service/internal/protocol"
	"xdp-service/pkg/httputil"
)

// TokenParser はベアラートークンを検証して呼び出し元を返す。
type TokenParser interface {
	Parse(token string) (domain.Principal, error)
}

// Authenticate はベアラートークンを検証し、呼び出し元をコンテキストに格納する。
func Authenticate(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			caller, err := tokens.Parse(token)
			if err != nil {
				slog.WarnContext(r.Context(), "rejected bearer token",
					"operation", "authenticate",
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(protocol.WithCaller(r.Context(), caller)))
		})
	}
}

// CallerIdentity は認証済みの呼び出し元を返す。
func CallerIdentity(ctx context.Context) (domain.Principal, bool) {
	return protocol.CallerFrom(ctx)
}
