package domain

import "fmt"

const (
	// DefaultEncryptionAlgorithm は既定の暗号アルゴリズム名。
	DefaultEncryptionAlgorithm = "AesManaged"
	// DefaultEncryptionMode は既定の暗号モード。
	DefaultEncryptionMode = "CBC"
	// DefaultSignatureAlgorithm は既定の署名アルゴリズム名。
	DefaultSignatureAlgorithm = "HMACSHA256"
)

// CryptoSettings は暗号化と署名に使うアルゴリズムの組を表す。
type CryptoSettings struct {
	EncryptionAlgorithm string
	EncryptionMode      string
	SignatureAlgorithm  string
}

// DefaultCryptoSettings は既定の暗号設定を返す。
func DefaultCryptoSettings() CryptoSettings {
	return CryptoSettings{
		EncryptionAlgorithm: DefaultEncryptionAlgorithm,
		EncryptionMode:      DefaultEncryptionMode,
		SignatureAlgorithm:  DefaultSignatureAlgorithm,
	}
}

func (s CryptoSettings) String() string {
	return fmt.Sprintf("%s/%s/%s", s.EncryptionAlgorithm, s.EncryptionMode, s.SignatureAlgorithm)
}
