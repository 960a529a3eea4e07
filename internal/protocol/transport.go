package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"xdp-service/internal/domain"
)

// MessagePath はメッセージを受け付けるパス。
const MessagePath = "/v1/messages"

const maxResponseSize = 16 << 20

// Transport はドメインサービスへのメッセージ送信を抽象化する。
type Transport interface {
	Send(ctx context.Context, message []byte) ([]byte, error)
	Close() error
}

// HTTPTransport は HTTP でメッセージを送信する。
// 呼び出し元はコンテキストの Principal からベアラートークンで証明する。
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	tokens   *TokenSigner
	timeout  time.Duration
}

// NewHTTPTransport は baseURL のドメインサービスに接続する HTTPTransport を生成する。
func NewHTTPTransport(baseURL string, timeout time.Duration, tokens *TokenSigner) *HTTPTransport {
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + MessagePath,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		tokens:  tokens,
		timeout: timeout,
	}
}

// Close はアイドル接続を閉じる。
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// Send はメッセージを送信し、応答の本文を返す。失敗はすべて domain.ErrCommunications。
func (t *HTTPTransport) Send(ctx context.Context, message []byte) ([]byte, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: unable to create an authenticated connection to the server: no caller", domain.ErrCommunications)
	}
	token, err := t.tokens.Issue(caller)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create an authenticated connection to the server: %v", domain.ErrCommunications, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(message))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", domain.ErrCommunications, err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: network timeout occurred (%s)", domain.ErrCommunications, t.timeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCommunications, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrCommunications, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: domain service returned status %d", domain.ErrCommunications, resp.StatusCode)
	}

	slog.DebugContext(ctx, "message exchanged with domain service",
		"operation", "send_message",
		"endpoint", t.endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
