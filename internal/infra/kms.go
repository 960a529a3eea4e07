package infra

import (
	"context"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
)

// KMSProtector はCloud KMSでキーバンドルを保護する。
// スコープは追加認証データとして渡すため、別スコープでは復号できない。
type KMSProtector struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSProtector は keyName の鍵を使う KMSProtector を生成する。
func NewKMSProtector(ctx context.Context, keyName string) (*KMSProtector, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME environment variable is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSProtector{
		client:  client,
		keyName: keyName,
	}, nil
}

// Protect は平文をCloud KMSで暗号化する。
func (p *KMSProtector) Protect(ctx context.Context, plaintext []byte, scope string) ([]byte, error) {
	req := &kmspb.EncryptRequest{
		Name:                        p.keyName,
		Plaintext:                   plaintext,
		AdditionalAuthenticatedData: []byte(scope),
	}
	resp, err := p.client.Encrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil
}

// Unprotect は暗号文をCloud KMSで復号する。
func (p *KMSProtector) Unprotect(ctx context.Context, ciphertext []byte, scope string) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:                        p.keyName,
		Ciphertext:                  ciphertext,
		AdditionalAuthenticatedData: []byte(scope),
	}
	resp, err := p.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (p *KMSProtector) Close() error {
	return p.client.Close()
}
