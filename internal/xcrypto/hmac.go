package xcrypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"xdp-service/internal/domain"
)

var hashes = map[string]func() hash.Hash{
	"hmacmd5":    md5.New,
	"hmacsha1":   sha1.New,
	"hmacsha256": sha256.New,
	"hmacsha384": sha512.New384,
	"hmacsha512": sha512.New,
}

// HmacSigner は HMAC による署名と検証を提供する。
// 鍵長はハッシュの出力長と同じ。
type HmacSigner struct {
	newHash func() hash.Hash
	size    int
}

// NewHmacSigner はアルゴリズム名から HmacSigner を生成する。
func NewHmacSigner(algorithm string) (*HmacSigner, error) {
	h, ok := hashes[strings.ToLower(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: could not create signature algorithm '%s'", domain.ErrBadSignatureAlgorithm, algorithm)
	}
	return &HmacSigner{newHash: h, size: h().Size()}, nil
}

// KeySize は署名鍵のバイト長を返す。
func (s *HmacSigner) KeySize() int { return s.size }

// Size は署名のバイト長を返す。
func (s *HmacSigner) Size() int { return s.size }

// GenerateKey はランダムな署名鍵を生成する。
func (s *HmacSigner) GenerateKey() ([]byte, error) {
	key := make([]byte, s.size)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signature key: %w", err)
	}
	return key, nil
}

// Sign は data の HMAC を返す。
func (s *HmacSigner) Sign(data, key []byte) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: the data to sign cannot be null", domain.ErrNullArgument)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: the data to sign cannot be empty", domain.ErrEmptyArgument)
	}
	if len(key) != s.size {
		return nil, fmt.Errorf("%w: the signature key was %d bytes instead of %d", domain.ErrBadSignatureKeyLength, len(key), s.size)
	}
	mac := hmac.New(s.newHash, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify は tag が data の署名と一致するかを返す。
// 長さが異なる場合は比較せずに false を返す。
func (s *HmacSigner) Verify(data, tag, key []byte) (bool, error) {
	computed, err := s.Sign(data, key)
	if err != nil {
		return false, err
	}
	if len(computed) != len(tag) {
		return false, nil
	}
	return hmac.Equal(computed, tag), nil
}
