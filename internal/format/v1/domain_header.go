package v1

import (
	"xdp-service/internal/domain"
	"xdp-service/internal/format"
)

// DomainHeader はドメイン ID と、ドメインサービスが保護したキーバンドル。
type DomainHeader struct {
	DomainServer         string                `xml:"XDPDomainServer"`
	AuthorizedIdentities *AuthorizedIdentities `xml:"XDPAuthorizedIdentities"`
	EncryptedKeys        format.HexBytes       `xml:"XDPEncryptedKeys,omitempty"`
}

// NewDomainHeader は DomainHeader を生成する。
func NewDomainHeader(server string, sids []string, encryptedKeys []byte) *DomainHeader {
	return &DomainHeader{
		DomainServer:         server,
		AuthorizedIdentities: NewAuthorizedIdentities(sids),
		EncryptedKeys:        encryptedKeys,
	}
}

// Validate は DomainHeader を検証する。
func (d *DomainHeader) Validate() error {
	if d == nil {
		return domain.NewBadParameter("XDPInternalDomainHeader", "Value was null")
	}
	if d.DomainServer == "" {
		return domain.NewBadParameter("XDPInternalDomainHeader.XDPDomainServer", "Value was null or empty")
	}
	if err := d.AuthorizedIdentities.Validate("XDPInternalDomainHeader.XDPAuthorizedIdentities"); err != nil {
		return err
	}
	if len(d.EncryptedKeys) == 0 {
		return domain.NewBadParameter("XDPInternalDomainHeader.XDPEncryptedKeys", "Value was null or empty")
	}
	return nil
}

// SignDomainHeader は common ‖ domain header の HMAC を key で計算する。
func SignDomainHeader(common *CommonHeader, d *DomainHeader, key []byte) ([]byte, error) {
	signer, err := common.signer()
	if err != nil {
		return nil, err
	}
	data, err := signatureData(common, "XDPInternalDomainHeader", d)
	if err != nil {
		return nil, err
	}
	return signer.Sign(data, key)
}

// VerifyDomainHeader はドメイン署名を再計算して比較する。
func VerifyDomainHeader(common *CommonHeader, d *DomainHeader, key, signature []byte) (bool, error) {
	signer, err := common.signer()
	if err != nil {
		return false, err
	}
	data, err := signatureData(common, "XDPInternalDomainHeader", d)
	if err != nil {
		return false, err
	}
	return signer.Verify(data, signature, key)
}
