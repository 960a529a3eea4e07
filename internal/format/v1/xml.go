package v1

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"xdp-service/internal/format"
)

func element(name string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Space: format.DataNamespace, Local: name}}
}

// marshalElement は署名対象と同じ形で要素をシリアライズする。
func marshalElement(name string, v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeElement(v, element(name)); err != nil {
		return nil, fmt.Errorf("serializing %s: %w", name, err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("serializing %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// signatureData は common ‖ part のシリアライズ結果を返す。
func signatureData(common *CommonHeader, name string, part any) ([]byte, error) {
	c, err := marshalElement("XDPInternalCommonHeader", common)
	if err != nil {
		return nil, err
	}
	p, err := marshalElement(name, part)
	if err != nil {
		return nil, err
	}
	return append(c, p...), nil
}
