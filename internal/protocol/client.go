package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	v1 "xdp-service/internal/format/v1"
	"xdp-service/internal/xcrypto"
)

// Client はドメインサービスとの鍵交換を行う。v1.DomainClient を実装する。
type Client struct {
	transport Transport
}

// NewClient は新しい Client を生成する。
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// RequestDomainHeader はドメインヘッダーの作成を依頼する。
func (c *Client) RequestDomainHeader(ctx context.Context, common *v1.CommonHeader, identities []string, keys *format.Keys) (*v1.DomainHeader, []byte, error) {
	req := &RequestDomainHeader{
		Common:     common,
		Identities: v1.NewAuthorizedIdentities(identities),
		Keys:       keys,
	}
	msg, err := c.exchange(ctx, req, SchemaResponseDomainHeader)
	if err != nil {
		return nil, nil, err
	}
	resp := msg.(*ResponseDomainHeader)
	if resp.DomainHeader == nil || len(resp.DomainSignature) == 0 {
		return nil, nil, fmt.Errorf("%w: domain header response was incomplete", domain.ErrGeneral)
	}
	return resp.DomainHeader, resp.DomainSignature, nil
}

// RequestDecryptionKey はドメインヘッダーのキーバンドルの開示を依頼する。
func (c *Client) RequestDecryptionKey(ctx context.Context, common *v1.CommonHeader, header *v1.DomainHeader, signature []byte) (*format.Keys, error) {
	req := &RequestDecryptionKey{
		Common:          common,
		DomainHeader:    header,
		DomainSignature: signature,
	}
	msg, err := c.exchange(ctx, req, SchemaResponseDecryptionKey)
	if err != nil {
		return nil, err
	}
	resp := msg.(*ResponseDecryptionKey)
	if resp.Keys == nil {
		return nil, fmt.Errorf("%w: decryption key response carried no keys", domain.ErrGeneral)
	}
	return resp.Keys, nil
}

func (c *Client) exchange(ctx context.Context, req any, expected Schema) (any, error) {
	data, err := Marshal(req)
	if err != nil {
		return nil, err
	}
	raw, err := c.transport.Send(ctx, data)
	xcrypto.Zero(data)
	if err != nil {
		return nil, err
	}

	msg, err := NewDispatcher(expected, SchemaExceptionResponse).Decode(raw)
	if err != nil {
		return nil, err
	}
	if ex, ok := msg.(*ExceptionResponse); ok {
		err := ex.Err()
		slog.DebugContext(ctx, "domain service returned an exception",
			"operation", "domain_exchange",
			"expected", expected.Name,
			"kind", domain.KindOf(err),
		)
		return nil, err
	}
	return msg, nil
}
