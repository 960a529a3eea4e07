package v1

import (
	"fmt"
	"strings"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
)

// MachineSignature はマシンヘッダー1つ分の署名。
type MachineSignature struct {
	Hostname string          `xml:"Hostname"`
	Value    format.HexBytes `xml:"Value"`
}

// HeaderSignatures は各マシンヘッダーとドメインヘッダーの署名。
type HeaderSignatures struct {
	MachineSignatures []MachineSignature `xml:"XDPInternalHeaderMachineSignature"`
	DomainSignature   format.HexBytes    `xml:"XDPInternalHeaderDomainSignature,omitempty"`
}

// ForHost は hostname の署名を返す。存在しない場合は nil。
func (s *HeaderSignatures) ForHost(hostname string) *MachineSignature {
	if s == nil {
		return nil
	}
	for i := range s.MachineSignatures {
		if strings.EqualFold(s.MachineSignatures[i].Hostname, hostname) {
			return &s.MachineSignatures[i]
		}
	}
	return nil
}

// Validate は存在するヘッダーとちょうど対応する署名があるかを検証する。
func (s *HeaderSignatures) Validate(machines []*MachineHeader, hasDomain bool, signatureLen int) error {
	const field = "XDPInternalHeaderSignatures"
	if s == nil {
		return domain.NewBadParameter(field, "Value was null")
	}

	if len(machines) == 0 && len(s.MachineSignatures) > 0 {
		return domain.NewBadParameter(field+".XDPInternalHeaderMachineSignature",
			"Machine signatures present without a machine header")
	}
	if len(machines) != len(s.MachineSignatures) {
		return domain.NewBadParameter(field+".XDPInternalHeaderMachineSignature",
			fmt.Sprintf("Expected %d machine signatures, found %d", len(machines), len(s.MachineSignatures)))
	}
	for _, sig := range s.MachineSignatures {
		if sig.Hostname == "" {
			return domain.NewBadParameter(field+".XDPInternalHeaderMachineSignature.Hostname", "Value was null or empty")
		}
		if err := ValidateSignature(sig.Value, signatureLen, field+".XDPInternalHeaderMachineSignature.Value"); err != nil {
			return err
		}
	}
	for _, m := range machines {
		if s.ForHost(m.Hostname) == nil {
			return domain.NewBadParameter(field+".XDPInternalHeaderMachineSignature",
				fmt.Sprintf("No signature for machine header '%s'", m.Hostname))
		}
	}

	if hasDomain {
		return ValidateSignature(s.DomainSignature, signatureLen, field+".XDPInternalHeaderDomainSignature")
	}
	if len(s.DomainSignature) > 0 {
		return domain.NewBadParameter(field+".XDPInternalHeaderDomainSignature",
			"Domain signature present without a domain header")
	}
	return nil
}

// ValidateSignature は署名が存在し、長さが一致するかを検証する。
func ValidateSignature(sig []byte, signatureLen int, field string) error {
	if len(sig) == 0 {
		return domain.NewBadParameter(field, "Value was null or empty")
	}
	if len(sig) != signatureLen {
		return domain.NewBadParameter(field,
			fmt.Sprintf("Signature length was %d bytes, expected %d", len(sig), signatureLen))
	}
	return nil
}
