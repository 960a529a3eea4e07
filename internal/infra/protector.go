package infra

import (
	"context"
	"fmt"
	"strings"

	"xdp-service/config"
)

// Protector はスコープに束縛された鍵の保護を提供する。
type Protector interface {
	Protect(ctx context.Context, plaintext []byte, scope string) ([]byte, error)
	Unprotect(ctx context.Context, ciphertext []byte, scope string) ([]byte, error)
	Close() error
}

// NewProtector は XDP_PROTECTOR に応じた Protector を生成する。
func NewProtector(ctx context.Context, cfg *config.Config) (Protector, error) {
	switch strings.ToLower(cfg.Protector) {
	case "", "keyring":
		p, err := NewKeyringProtector(cfg.KeyringDir)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kms":
		p, err := NewKMSProtector(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown protector %q", cfg.Protector)
	}
}
