// Package format はバージョン付き XDP ヘッダーを提供する。
package format

import (
	"context"
	"encoding/xml"
	"fmt"

	"xdp-service/internal/domain"
)

const (
	// DataNamespace はヘッダー要素の名前空間。
	DataNamespace = "urn:com.XDP.XDPData"
	// MessageNamespace はドメインサービスとのメッセージの名前空間。
	MessageNamespace = "urn:com.XDP.XDPMessages"
)

// InternalHeader はバージョンごとの内部ヘッダー。
type InternalHeader interface {
	Version() uint16
	Validate() error
	// Populate は暗号化時にヘッダーを構築する。
	Populate(ctx context.Context, keys *Keys, dataSignature []byte, recipients domain.Recipients) error
	// DecryptionParameters は呼び出し元を認可し、復号に必要な鍵と設定を返す。
	DecryptionParameters(ctx context.Context, caller domain.Principal) (*DecryptionParameters, error)
	MarshalInner() ([]byte, error)
}

// DecryptionParameters は復号に必要な情報。Keys は呼び出し側で Dispose する。
type DecryptionParameters struct {
	Settings      domain.CryptoSettings
	Keys          *Keys
	DataSignature []byte
}

// Factory は特定バージョンの内部ヘッダーを生成・解析する。
type Factory interface {
	NewHeader(settings domain.CryptoSettings) InternalHeader
	Parse(inner []byte) (InternalHeader, error)
}

type innerXML struct {
	Inner []byte `xml:",innerxml"`
}

type xmlHeader struct {
	XMLName  xml.Name  `xml:"urn:com.XDP.XDPData XDPHeader"`
	Version  *uint16   `xml:"XDPVersion"`
	Internal *innerXML `xml:"XDPInternalHeader"`
}

// Registry はバージョン番号と Factory の対応を保持する。
type Registry struct {
	current   uint16
	factories map[uint16]Factory
}

// NewRegistry は新しい Registry を生成する。current は暗号化時に使うバージョン。
func NewRegistry(current uint16, factories map[uint16]Factory) *Registry {
	return &Registry{current: current, factories: factories}
}

// NewHeader は現在のバージョンで空のヘッダーを生成する。
func (r *Registry) NewHeader(settings domain.CryptoSettings) (InternalHeader, error) {
	f, ok := r.factories[r.current]
	if !ok {
		return nil, fmt.Errorf("%w: no header factory for version %d", domain.ErrNotSupported, r.current)
	}
	return f.NewHeader(settings), nil
}

// Marshal は XDPHeader をシリアライズする。
func (r *Registry) Marshal(h InternalHeader) ([]byte, error) {
	inner, err := h.MarshalInner()
	if err != nil {
		return nil, err
	}
	version := h.Version()
	out, err := xml.Marshal(&xmlHeader{
		Version:  &version,
		Internal: &innerXML{Inner: inner},
	})
	if err != nil {
		return nil, fmt.Errorf("serializing header: %w", err)
	}
	return out, nil
}

// Unmarshal はバージョンを読み取り、対応する Factory で内部ヘッダーを解析する。
func (r *Registry) Unmarshal(data []byte) (InternalHeader, error) {
	var x xmlHeader
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("%w: deserializing header: %v", domain.ErrInvalidFormat, err)
	}
	if x.Version == nil {
		return nil, fmt.Errorf("%w: no XDPVersion was present", domain.ErrInvalidFormat)
	}
	if x.Internal == nil {
		return nil, fmt.Errorf("%w: no XDPInternalHeader was present", domain.ErrInvalidFormat)
	}
	f, ok := r.factories[*x.Version]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported header version %d", domain.ErrInvalidFormat, *x.Version)
	}
	h, err := f.Parse(x.Internal.Inner)
	if err != nil {
		return nil, err
	}
	return h, nil
}
