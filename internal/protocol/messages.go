// Package protocol はドメインサービスとの鍵交換メッセージを提供する。
package protocol

import (
	"encoding/xml"
	"fmt"

	"xdp-service/internal/format"
	v1 "xdp-service/internal/format/v1"
)

// RequestDomainHeader はドメインヘッダーの作成を依頼する。
type RequestDomainHeader struct {
	XMLName    xml.Name                 `xml:"urn:com.XDP.XDPMessages XDPRequestDomainHeader"`
	Common     *v1.CommonHeader         `xml:"urn:com.XDP.XDPData XDPInternalCommonHeader"`
	Identities *v1.AuthorizedIdentities `xml:"urn:com.XDP.XDPData XDPAuthorizedIdentities"`
	Keys       *format.Keys             `xml:"urn:com.XDP.XDPMessages XDPKeys"`
}

// ResponseDomainHeader は作成されたドメインヘッダーとその署名。
type ResponseDomainHeader struct {
	XMLName         xml.Name         `xml:"urn:com.XDP.XDPMessages XDPResponseDomainHeader"`
	DomainHeader    *v1.DomainHeader `xml:"urn:com.XDP.XDPData XDPInternalDomainHeader"`
	DomainSignature format.HexBytes  `xml:"urn:com.XDP.XDPData XDPInternalHeaderDomainSignature"`
}

// RequestDecryptionKey はドメインヘッダーのキーバンドルの開示を依頼する。
type RequestDecryptionKey struct {
	XMLName         xml.Name         `xml:"urn:com.XDP.XDPMessages XDPRequestDecryptionKey"`
	Common          *v1.CommonHeader `xml:"urn:com.XDP.XDPData XDPInternalCommonHeader"`
	DomainHeader    *v1.DomainHeader `xml:"urn:com.XDP.XDPData XDPInternalDomainHeader"`
	DomainSignature format.HexBytes  `xml:"urn:com.XDP.XDPData XDPInternalHeaderDomainSignature"`
}

// ResponseDecryptionKey は開示されたキーバンドル。
type ResponseDecryptionKey struct {
	XMLName xml.Name     `xml:"urn:com.XDP.XDPMessages XDPResponseDecryptionKey"`
	Keys    *format.Keys `xml:"urn:com.XDP.XDPMessages XDPKeys"`
}

// BadParameterException は XDPBadParameter の内容。
type BadParameterException struct {
	Parameter string `xml:"Parameter"`
	Reason    string `xml:"Reason"`
}

// UpdateCommonHeaderException は XDPUpdateCommonHeader の内容。
type UpdateCommonHeaderException struct {
	Common *v1.CommonHeader `xml:"urn:com.XDP.XDPData XDPInternalCommonHeader"`
}

// ExceptionResponse はドメインサービスのエラー応答。いずれか1つの要素だけが設定される。
type ExceptionResponse struct {
	XMLName            xml.Name                     `xml:"urn:com.XDP.XDPMessages XDPExceptionResponse"`
	BadParameter       *BadParameterException       `xml:"XDPBadParameter"`
	BadSignature       *string                      `xml:"XDPBadSignature"`
	General            *string                      `xml:"XDPGeneralException"`
	NotAuthorized      *string                      `xml:"XDPNotAuthorized"`
	UnknownIdentity    *string                      `xml:"XDPUnknownIdentity"`
	UpdateCommonHeader *UpdateCommonHeaderException `xml:"XDPUpdateCommonHeader"`
}

// Marshal はメッセージをシリアライズする。
func Marshal(msg any) ([]byte, error) {
	b, err := xml.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serializing message %T: %w", msg, err)
	}
	return b, nil
}
