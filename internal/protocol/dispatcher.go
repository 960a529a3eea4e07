package protocol

import (
	"encoding/xml"
	"fmt"

	"xdp-service/internal/domain"
)

// Schema はメッセージ型の名前と生成関数。
type Schema struct {
	Name string
	New  func() any
}

var (
	// SchemaRequestDomainHeader は XDPRequestDomainHeader のスキーマ。
	SchemaRequestDomainHeader = Schema{Name: "XDPRequestDomainHeader", New: func() any { return new(RequestDomainHeader) }}
	// SchemaResponseDomainHeader は XDPResponseDomainHeader のスキーマ。
	SchemaResponseDomainHeader = Schema{Name: "XDPResponseDomainHeader", New: func() any { return new(ResponseDomainHeader) }}
	// SchemaRequestDecryptionKey は XDPRequestDecryptionKey のスキーマ。
	SchemaRequestDecryptionKey = Schema{Name: "XDPRequestDecryptionKey", New: func() any { return new(RequestDecryptionKey) }}
	// SchemaResponseDecryptionKey は XDPResponseDecryptionKey のスキーマ。
	SchemaResponseDecryptionKey = Schema{Name: "XDPResponseDecryptionKey", New: func() any { return new(ResponseDecryptionKey) }}
	// SchemaExceptionResponse は XDPExceptionResponse のスキーマ。
	SchemaExceptionResponse = Schema{Name: "XDPExceptionResponse", New: func() any { return new(ExceptionResponse) }}
)

// Dispatcher は受信したメッセージを順序付きのスキーマで判別する。
type Dispatcher struct {
	schemas []Schema
}

// NewDispatcher は schemas の順に試行する Dispatcher を生成する。
func NewDispatcher(schemas ...Schema) *Dispatcher {
	return &Dispatcher{schemas: schemas}
}

// Decode は最初にデコードできたスキーマのメッセージを返す。
// どのスキーマにも一致しない場合は domain.ErrUnknownMessage を返す。
func (d *Dispatcher) Decode(data []byte) (any, error) {
	for _, s := range d.schemas {
		msg := s.New()
		if err := xml.Unmarshal(data, msg); err == nil {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("%w: message did not match any of %d schemas", domain.ErrUnknownMessage, len(d.schemas))
}
