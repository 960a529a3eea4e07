package v1

import (
	"xdp-service/internal/domain"
	"xdp-service/internal/format"
)

// Factory は format.Factory を実装する。
type Factory struct {
	env *Environment
}

// NewFactory は新しい Factory を生成する。
func NewFactory(env *Environment) *Factory {
	return &Factory{env: env}
}

// NewHeader は未構築のヘッダーを生成する。
func (f *Factory) NewHeader(settings domain.CryptoSettings) format.InternalHeader {
	return &Header{settings: settings, env: f.env}
}

// Parse は XDPInternalHeader の中身を解析する。
func (f *Factory) Parse(inner []byte) (format.InternalHeader, error) {
	return parse(inner, f.env)
}
