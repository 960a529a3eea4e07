// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"xdp-service/internal/domain"
	"xdp-service/internal/envelope"
	"xdp-service/internal/format"
	"xdp-service/internal/protocol"
	"xdp-service/internal/worker"
	"xdp-service/internal/xcrypto"
)

const (
	// MaxEncryptAttempts は暗号設定の更新による暗号化のやり直しの上限。
	MaxEncryptAttempts = 5
	// KeyWaitTimeout は鍵生成と暗号化タスクを待つ期限。
	KeyWaitTimeout = 30 * time.Second
)

var tracer = otel.Tracer("xdp-service/internal/usecase")

// IdentityBucketer は暗号化対象の ID を受信者ごとに振り分ける。
type IdentityBucketer interface {
	Bucket(ctx context.Context, identities []string) (domain.Recipients, error)
}

// ProtectService はデータの暗号化と復号を提供する。
type ProtectService struct {
	registry *format.Registry
	bucketer IdentityBucketer
	pool     *worker.Pool
	machine  string

	mu       sync.RWMutex
	settings domain.CryptoSettings
}

// NewProtectService は新しいProtectServiceを生成する。
func NewProtectService(registry *format.Registry, bucketer IdentityBucketer, pool *worker.Pool, machine string, settings domain.CryptoSettings) *ProtectService {
	return &ProtectService{
		registry: registry,
		bucketer: bucketer,
		pool:     pool,
		machine:  machine,
		settings: settings,
	}
}

// Settings は現在の暗号設定を返す。
func (s *ProtectService) Settings() domain.CryptoSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *ProtectService) updateSettings(settings domain.CryptoSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Encrypt は plaintext を identities だけが復号できるエンベロープに暗号化する。
func (s *ProtectService) Encrypt(ctx context.Context, caller domain.Principal, plaintext []byte, identities []string) ([]byte, error) {
	if plaintext == nil {
		return nil, fmt.Errorf("%w: the data to encrypt cannot be null", domain.ErrNullArgument)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: the data to encrypt cannot be empty", domain.ErrEmptyArgument)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: at least one identity must be specified", domain.ErrEmptyArgument)
	}

	ctx = protocol.WithCaller(ctx, caller)
	ctx, span := tracer.Start(ctx, "ProtectService.Encrypt", trace.WithAttributes(
		attribute.Int("xdp.identities", len(identities)),
		attribute.Int("xdp.bytes", len(plaintext)),
	))
	defer span.End()

	recipients, err := s.bucketer.Bucket(ctx, identities)
	if err != nil {
		return nil, err
	}
	if recipients.HasDomain() && strings.EqualFold(caller.Context, s.machine) {
		return nil, fmt.Errorf("%w: %s is a local account and cannot encrypt for domain identities", domain.ErrGeneral, caller.Identity())
	}

	for attempt := 1; attempt <= MaxEncryptAttempts; attempt++ {
		out, err := s.encrypt(ctx, plaintext, recipients, s.Settings())
		var updated *domain.UpdatedSettingsError
		if errors.As(err, &updated) {
			slog.InfoContext(ctx, "domain service updated crypto settings",
				"operation", "encrypt",
				"attempt", attempt,
				"settings", updated.Settings.String(),
			)
			span.AddEvent("crypto settings updated")
			s.updateSettings(updated.Settings)
			continue
		}
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "encrypted data",
			"operation", "encrypt",
			"caller", caller.Identity(),
			"bytes", len(out),
		)
		return out, nil
	}
	return nil, fmt.Errorf("%w: crypto settings were updated %d times without success", domain.ErrGeneral, MaxEncryptAttempts)
}

type keyMaterial struct {
	key []byte
	iv  []byte
}

type sealed struct {
	ciphertext []byte
	flags      envelope.Flags
}

// encrypt は1回分の暗号化を行う。署名と暗号化はプールで並行に実行する。
func (s *ProtectService) encrypt(ctx context.Context, plaintext []byte, recipients domain.Recipients, settings domain.CryptoSettings) ([]byte, error) {
	sc, err := xcrypto.NewSymmetricCipher(settings.EncryptionAlgorithm, settings.EncryptionMode)
	if err != nil {
		return nil, err
	}
	signer, err := xcrypto.NewHmacSigner(settings.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}
	signatureKey, err := signer.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneral, err)
	}
	keys := &format.Keys{SignatureKey: signatureKey}

	signature := worker.Submit(ctx, s.pool, func(ctx context.Context) ([]byte, error) {
		return signer.Sign(plaintext, signatureKey)
	})

	ready := make(chan keyMaterial, 1)
	encryption := worker.Submit(ctx, s.pool, func(ctx context.Context) (sealed, error) {
		key, iv, err := sc.Generate()
		if err != nil {
			close(ready)
			return sealed{}, err
		}
		ready <- keyMaterial{key: key, iv: iv}
		data, flags, err := envelope.CompressData(plaintext)
		if err != nil {
			return sealed{}, err
		}
		ct, err := sc.Encrypt(data, key, iv)
		if err != nil {
			return sealed{}, err
		}
		return sealed{ciphertext: ct, flags: flags}, nil
	})
	// 暗号化タスクが鍵を使い終えてから破棄する
	defer func() {
		<-encryption.Done()
		keys.Dispose()
	}()

	dataSignature, err := signature.Wait(ctx, KeyWaitTimeout)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(KeyWaitTimeout)
	defer timer.Stop()
	select {
	case km, ok := <-ready:
		if !ok {
			_, err := encryption.Wait(ctx, KeyWaitTimeout)
			return nil, fmt.Errorf("%w: generating keys: %v", domain.ErrGeneral, err)
		}
		keys.EncryptionKey, keys.IV = km.key, km.iv
	case <-timer.C:
		return nil, fmt.Errorf("%w: timed out after %s waiting for keys", domain.ErrGeneral, KeyWaitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	header, err := s.registry.NewHeader(settings)
	if err != nil {
		return nil, err
	}
	if err := header.Populate(ctx, keys, dataSignature, recipients); err != nil {
		return nil, err
	}
	headerBytes, err := s.registry.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneral, err)
	}
	encodedHeader, headerFlags, err := envelope.EncodeHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneral, err)
	}

	result, err := encryption.Wait(ctx, KeyWaitTimeout)
	if err != nil {
		return nil, err
	}
	return envelope.Encode(result.flags|headerFlags, encodedHeader, result.ciphertext), nil
}

// Decrypt はエンベロープを caller として復号する。
func (s *ProtectService) Decrypt(ctx context.Context, caller domain.Principal, data []byte) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: the data to decrypt cannot be null", domain.ErrNullArgument)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: the data to decrypt cannot be empty", domain.ErrEmptyArgument)
	}

	ctx = protocol.WithCaller(ctx, caller)
	ctx, span := tracer.Start(ctx, "ProtectService.Decrypt", trace.WithAttributes(
		attribute.Int("xdp.bytes", len(data)),
	))
	defer span.End()

	env, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}
	headerBytes, err := env.DecodeHeader()
	if err != nil {
		return nil, err
	}
	header, err := s.registry.Unmarshal(headerBytes)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}

	params, err := header.DecryptionParameters(ctx, caller)
	if err != nil {
		return nil, err
	}
	defer params.Keys.Dispose()

	sc, err := xcrypto.NewSymmetricCipher(params.Settings.EncryptionAlgorithm, params.Settings.EncryptionMode)
	if err != nil {
		return nil, err
	}
	signer, err := xcrypto.NewHmacSigner(params.Settings.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}
	if err := params.Keys.Validate(sc.KeySize(), signer.KeySize()); err != nil {
		return nil, err
	}

	plaintext, err := sc.Decrypt(env.Ciphertext, params.Keys.EncryptionKey, params.Keys.IV)
	if err != nil {
		return nil, err
	}
	if env.Flags.Has(envelope.FlagDataCompressed) {
		compressed := plaintext
		plaintext, err = envelope.Decompress(compressed, envelope.MaxDataSize)
		xcrypto.Zero(compressed)
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing data: %v", domain.ErrInvalidFormat, err)
		}
	}

	ok, err := signer.Verify(plaintext, params.DataSignature, params.Keys.SignatureKey)
	if err != nil {
		xcrypto.Zero(plaintext)
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureVerification, err)
	}
	if !ok {
		xcrypto.Zero(plaintext)
		return nil, fmt.Errorf("%w: the decrypted data does not match its signature", domain.ErrSignatureVerification)
	}

	slog.DebugContext(ctx, "decrypted data",
		"operation", "decrypt",
		"caller", caller.Identity(),
		"bytes", len(plaintext),
	)
	return plaintext, nil
}
