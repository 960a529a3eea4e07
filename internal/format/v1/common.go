package v1

import (
	"fmt"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	"xdp-service/internal/xcrypto"
)

// CommonHeader は全受信者で共有される暗号設定と平文の署名。
type CommonHeader struct {
	EncryptionAlgorithm string          `xml:"XDPEncryptionAlgorithm"`
	EncryptionMode      string          `xml:"XDPEncryptionMode"`
	EncryptionIV        format.HexBytes `xml:"XDPEncryptionIV,omitempty"`
	SignatureAlgorithm  string          `xml:"XDPSignatureAlgorithm"`
	DataSignature       format.HexBytes `xml:"XDPDataSignature,omitempty"`
}

// NewCommonHeader は設定、IV、平文の署名から CommonHeader を生成する。
func NewCommonHeader(settings domain.CryptoSettings, iv, dataSignature []byte) *CommonHeader {
	return &CommonHeader{
		EncryptionAlgorithm: settings.EncryptionAlgorithm,
		EncryptionMode:      settings.EncryptionMode,
		EncryptionIV:        append(format.HexBytes(nil), iv...),
		SignatureAlgorithm:  settings.SignatureAlgorithm,
		DataSignature:       append(format.HexBytes(nil), dataSignature...),
	}
}

// Settings はヘッダーに記録された暗号設定を返す。
func (c *CommonHeader) Settings() domain.CryptoSettings {
	return domain.CryptoSettings{
		EncryptionAlgorithm: c.EncryptionAlgorithm,
		EncryptionMode:      c.EncryptionMode,
		SignatureAlgorithm:  c.SignatureAlgorithm,
	}
}

// MatchesSettings はヘッダーの設定が s と一致するかを返す。
func (c *CommonHeader) MatchesSettings(s domain.CryptoSettings) bool {
	return c.Settings() == s
}

// WithSettings は設定だけを s に置き換えた複製を返す。
func (c *CommonHeader) WithSettings(s domain.CryptoSettings) *CommonHeader {
	out := *c
	out.EncryptionAlgorithm = s.EncryptionAlgorithm
	out.EncryptionMode = s.EncryptionMode
	out.SignatureAlgorithm = s.SignatureAlgorithm
	return &out
}

// Validate は CommonHeader を検証し、暗号鍵長と署名鍵長を返す。
func (c *CommonHeader) Validate() (encryptionKeyLen, signatureKeyLen int, err error) {
	if c == nil {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader", "Value was null")
	}
	if c.EncryptionAlgorithm == "" {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionAlgorithm", "Value was null or empty")
	}
	if c.EncryptionMode == "" {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionMode", "Value was null or empty")
	}
	if !xcrypto.ValidMode(c.EncryptionMode) {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionMode",
			fmt.Sprintf("Unsupported cipher mode '%s'", c.EncryptionMode))
	}
	sc, err := xcrypto.NewSymmetricCipher(c.EncryptionAlgorithm, c.EncryptionMode)
	if err != nil {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionAlgorithm",
			fmt.Sprintf("Could not create encryption algorithm '%s'", c.EncryptionAlgorithm))
	}
	if len(c.EncryptionIV) == 0 {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionIV", "Value was null or empty")
	}
	if len(c.EncryptionIV) != sc.BlockSize() {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPEncryptionIV",
			fmt.Sprintf("IV length was %d bytes, expected %d", len(c.EncryptionIV), sc.BlockSize()))
	}
	if c.SignatureAlgorithm == "" {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPSignatureAlgorithm", "Value was null or empty")
	}
	signer, err := xcrypto.NewHmacSigner(c.SignatureAlgorithm)
	if err != nil {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPSignatureAlgorithm",
			fmt.Sprintf("Could not create signature algorithm '%s'", c.SignatureAlgorithm))
	}
	if len(c.DataSignature) == 0 {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPDataSignature", "Value was null or empty")
	}
	if len(c.DataSignature) != signer.Size() {
		return 0, 0, domain.NewBadParameter("XDPInternalCommonHeader.XDPDataSignature",
			fmt.Sprintf("Signature length was %d bytes, expected %d", len(c.DataSignature), signer.Size()))
	}
	return sc.KeySize(), signer.KeySize(), nil
}

func (c *CommonHeader) signer() (*xcrypto.HmacSigner, error) {
	return xcrypto.NewHmacSigner(c.SignatureAlgorithm)
}
