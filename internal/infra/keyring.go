package infra

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"xdp-service/internal/xcrypto"
)

const (
	masterKeyFile = "master.key"
	masterKeySize = 32
	keyInfoPrefix = "xdp/protect/v1:"
)

// KeyringProtector はローカルのマスター鍵でキーバンドルを保護する。
// スコープごとに HKDF で鍵を導出し、XChaCha20-Poly1305 で暗号化する。
// 出力は nonce ‖ ciphertext。
type KeyringProtector struct {
	master []byte
}

// NewKeyringProtector は dir のマスター鍵を読み込む。存在しなければ生成する。
func NewKeyringProtector(dir string) (*KeyringProtector, error) {
	path := filepath.Join(dir, masterKeyFile)
	master, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		master, err = createMasterKey(dir, path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading keyring: %w", err)
	}
	if len(master) != masterKeySize {
		xcrypto.Zero(master)
		return nil, fmt.Errorf("loading keyring: master key in %s is %d bytes, expected %d", path, len(master), masterKeySize)
	}
	return &KeyringProtector{master: master}, nil
}

func createMasterKey(dir, path string) ([]byte, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	master := make([]byte, masterKeySize)
	if _, err := rand.Read(master); err != nil {
		return nil, err
	}
	// 他プロセスが同時に作成した場合はそちらを使う
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(master); err != nil {
		return nil, err
	}
	return master, nil
}

func (p *KeyringProtector) scopeKey(scope string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, p.master, nil, []byte(keyInfoPrefix+scope))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving scope key: %w", err)
	}
	return key, nil
}

// Protect は plaintext を scope の鍵で暗号化する。
func (p *KeyringProtector) Protect(_ context.Context, plaintext []byte, scope string) ([]byte, error) {
	key, err := p.scopeKey(scope)
	if err != nil {
		return nil, err
	}
	defer xcrypto.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(scope)), nil
}

// Unprotect は Protect の出力を scope の鍵で復号する。
func (p *KeyringProtector) Unprotect(_ context.Context, ciphertext []byte, scope string) ([]byte, error) {
	key, err := p.scopeKey(scope)
	if err != nil {
		return nil, err
	}
	defer xcrypto.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("protected data is %d bytes, too short", len(ciphertext))
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(scope))
	if err != nil {
		return nil, fmt.Errorf("opening protected data: %w", err)
	}
	return plaintext, nil
}

// Close はマスター鍵をゼロで上書きする。
func (p *KeyringProtector) Close() error {
	xcrypto.Zero(p.master)
	return nil
}
