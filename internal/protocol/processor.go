package protocol

import (
	"context"
	"errors"
	"log/slog"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
)

// Authority はドメインサービス側の鍵交換処理。
type Authority interface {
	RequestDomainHeader(ctx context.Context, caller domain.Principal, req *RequestDomainHeader) (*ResponseDomainHeader, error)
	RequestDecryptionKey(ctx context.Context, caller domain.Principal, req *RequestDecryptionKey) (*ResponseDecryptionKey, error)
}

// Processor は受信したメッセージを判別して Authority に渡し、応答を返す。
type Processor struct {
	authority  Authority
	dispatcher *Dispatcher
	observe    func(message, result string)
}

// NewProcessor は新しい Processor を生成する。
func NewProcessor(authority Authority) *Processor {
	return &Processor{
		authority:  authority,
		dispatcher: NewDispatcher(SchemaRequestDomainHeader, SchemaRequestDecryptionKey),
	}
}

// WithObserver はメッセージごとに呼び出す関数を設定する。
// result は成功時 "ok"、失敗時はエラーの分類名。
func (p *Processor) WithObserver(fn func(message, result string)) *Processor {
	p.observe = fn
	return p
}

// Process はメッセージを処理する。処理の失敗はエラー応答として返し、
// エラーはシリアライズに失敗した場合のみ返す。
func (p *Processor) Process(ctx context.Context, caller domain.Principal, data []byte) ([]byte, error) {
	message, resp, err := p.handle(ctx, caller, data)
	// 開示したキーバンドルはシリアライズ後に消去する
	defer releasedKeys(resp).Dispose()
	if p.observe != nil {
		result := "ok"
		if err != nil {
			result = domain.KindOf(err)
		}
		p.observe(message, result)
	}
	if err != nil {
		kind := domain.KindOf(err)
		if kind == "General" || errors.Is(err, domain.ErrUnknownMessage) {
			slog.ErrorContext(ctx, "failed to process message",
				"operation", "process_message",
				"message", message,
				"caller_sid", caller.SID,
				"error", err,
			)
		} else {
			slog.InfoContext(ctx, "message rejected",
				"operation", "process_message",
				"caller_sid", caller.SID,
				"kind", kind,
				"error", err,
			)
		}
		return Marshal(ToException(err))
	}
	return Marshal(resp)
}

// releasedKeys は応答に含まれるキーバンドルを返す。含まれない場合は nil。
func releasedKeys(resp any) *format.Keys {
	if r, ok := resp.(*ResponseDecryptionKey); ok && r != nil {
		return r.Keys
	}
	return nil
}

func (p *Processor) handle(ctx context.Context, caller domain.Principal, data []byte) (string, any, error) {
	msg, err := p.dispatcher.Decode(data)
	if err != nil {
		return "unknown", nil, err
	}
	switch m := msg.(type) {
	case *RequestDomainHeader:
		resp, err := p.authority.RequestDomainHeader(ctx, caller, m)
		return SchemaRequestDomainHeader.Name, resp, err
	case *RequestDecryptionKey:
		resp, err := p.authority.RequestDecryptionKey(ctx, caller, m)
		return SchemaRequestDecryptionKey.Name, resp, err
	default:
		return "unknown", nil, domain.ErrUnknownMessage
	}
}
