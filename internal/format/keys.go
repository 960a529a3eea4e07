package format

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"xdp-service/internal/domain"
	"xdp-service/internal/xcrypto"
)

// Keys は1回の暗号化で使う鍵の組 (キーバンドル)。
// IV は共通ヘッダーで運ばれるためシリアライズしない。
type Keys struct {
	XMLName       xml.Name `xml:"urn:com.XDP.XDPMessages XDPKeys"`
	EncryptionKey HexBytes `xml:"XDPEncryptionKey"`
	SignatureKey  HexBytes `xml:"XDPSignatureKey"`
	IV            []byte   `xml:"-"`
}

// Dispose は鍵をゼロで上書きする。nil でも呼び出せる。
func (k *Keys) Dispose() {
	if k == nil {
		return
	}
	xcrypto.Zero(k.EncryptionKey)
	xcrypto.Zero(k.SignatureKey)
	xcrypto.Zero(k.IV)
}

// Validate は鍵長がアルゴリズムと一致するかを検証する。
func (k *Keys) Validate(encryptionKeyLen, signatureKeyLen int) error {
	if k == nil {
		return domain.NewBadParameter("XDPKeys", "Value was null")
	}
	if len(k.EncryptionKey) == 0 {
		return domain.NewBadParameter("XDPKeys.XDPEncryptionKey", "Value was null or empty")
	}
	if len(k.EncryptionKey) != encryptionKeyLen {
		return domain.NewBadParameter("XDPKeys.XDPEncryptionKey",
			fmt.Sprintf("Key length was %d bytes, expected %d", len(k.EncryptionKey), encryptionKeyLen))
	}
	if len(k.SignatureKey) == 0 {
		return domain.NewBadParameter("XDPKeys.XDPSignatureKey", "Value was null or empty")
	}
	if len(k.SignatureKey) != signatureKeyLen {
		return domain.NewBadParameter("XDPKeys.XDPSignatureKey",
			fmt.Sprintf("Key length was %d bytes, expected %d", len(k.SignatureKey), signatureKeyLen))
	}
	return nil
}

// Marshal は保護 (wrap) 前のキーバンドルをシリアライズする。
func (k *Keys) Marshal() ([]byte, error) {
	b, err := xml.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("serializing keys: %w", err)
	}
	return b, nil
}

// UnmarshalKeys は保護を解除したキーバンドルを復元する。
func UnmarshalKeys(data []byte) (*Keys, error) {
	var k Keys
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&k); err != nil {
		return nil, fmt.Errorf("%w: deserializing keys: %v", domain.ErrInvalidFormat, err)
	}
	return &k, nil
}
