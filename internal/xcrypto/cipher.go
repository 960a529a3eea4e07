// Package xcrypto は対称暗号と HMAC のヘルパーを提供する。
package xcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"fmt"
	"strings"

	"xdp-service/internal/domain"
)

type blockAlgorithm struct {
	keySize   int
	blockSize int
	newBlock  func(key []byte) (cipher.Block, error)
}

var (
	aes256 = blockAlgorithm{keySize: 32, blockSize: aes.BlockSize, newBlock: aes.NewCipher}
	des3   = blockAlgorithm{keySize: 24, blockSize: des.BlockSize, newBlock: des.NewTripleDESCipher}
)

// アルゴリズム名は大文字小文字を区別しない。
var algorithms = map[string]blockAlgorithm{
	"aesmanaged":               aes256,
	"aescryptoserviceprovider": aes256,
	"aes":                      aes256,
	"rijndael":                 aes256,
	"rijndaelmanaged":          aes256,
	"tripledes":                des3,
}

// サポートする暗号モード。
var modes = map[string]bool{
	"CBC": true,
}

// ValidMode は暗号モード名が利用可能かを返す。
func ValidMode(mode string) bool {
	return modes[strings.ToUpper(mode)]
}

// SymmetricCipher は設定されたアルゴリズムとモードでの暗号化を提供する。
type SymmetricCipher struct {
	name string
	alg  blockAlgorithm
}

// NewSymmetricCipher はアルゴリズム名とモードから SymmetricCipher を生成する。
func NewSymmetricCipher(algorithm, mode string) (*SymmetricCipher, error) {
	alg, ok := algorithms[strings.ToLower(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: could not create encryption algorithm '%s'", domain.ErrBadEncryptionAlgorithm, algorithm)
	}
	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: unsupported cipher mode '%s'", domain.ErrBadEncryptionAlgorithm, mode)
	}
	return &SymmetricCipher{name: algorithm, alg: alg}, nil
}

// KeySize は鍵のバイト長を返す。
func (c *SymmetricCipher) KeySize() int { return c.alg.keySize }

// BlockSize はブロック長 (= IV 長) を返す。
func (c *SymmetricCipher) BlockSize() int { return c.alg.blockSize }

// Generate はランダムな鍵と IV を生成する。
func (c *SymmetricCipher) Generate() (key, iv []byte, err error) {
	key = make([]byte, c.alg.keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generating random key: %w", err)
	}
	iv = make([]byte, c.alg.blockSize)
	if _, err := rand.Read(iv); err != nil {
		Zero(key)
		return nil, nil, fmt.Errorf("generating random iv: %w", err)
	}
	return key, iv, nil
}

func (c *SymmetricCipher) block(key, iv []byte) (cipher.Block, error) {
	if len(key) != c.alg.keySize {
		return nil, domain.NewBadParameter("EncryptionKey", fmt.Sprintf("key was %d bytes instead of %d", len(key), c.alg.keySize))
	}
	if len(iv) != c.alg.blockSize {
		return nil, domain.NewBadParameter("EncryptionIV", fmt.Sprintf("IV was %d bytes instead of %d", len(iv), c.alg.blockSize))
	}
	b, err := c.alg.newBlock(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadEncryptionAlgorithm, err)
	}
	return b, nil
}

// Encrypt は PKCS#7 パディングを付けて暗号化する。
func (c *SymmetricCipher) Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	if plaintext == nil {
		return nil, fmt.Errorf("%w: the data to encrypt cannot be null", domain.ErrNullArgument)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: the data to encrypt cannot be empty", domain.ErrEmptyArgument)
	}
	b, err := c.block(key, iv)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext, b.BlockSize())
	defer Zero(padded)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt は復号してパディングを取り除く。
func (c *SymmetricCipher) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, fmt.Errorf("%w: the data to decrypt cannot be null", domain.ErrNullArgument)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: the data to decrypt cannot be empty", domain.ErrEmptyArgument)
	}
	b, err := c.block(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%b.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", domain.ErrGeneral)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(b, iv).CryptBlocks(out, ciphertext)
	plain, err := unpad(out, b.BlockSize())
	if err != nil {
		Zero(out)
		return nil, err
	}
	return plain, nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: invalid padding", domain.ErrGeneral)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", domain.ErrGeneral)
	}
	for _, p := range data[len(data)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: invalid padding", domain.ErrGeneral)
		}
	}
	return data[:len(data)-n], nil
}
