// Package v1 はバージョン1の内部ヘッダーを実装する。
package v1

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
)

// Version はこのパッケージが扱うヘッダーのバージョン。
const Version uint16 = 1

// DomainClient はドメインサービスとの鍵交換を行う。
type DomainClient interface {
	RequestDomainHeader(ctx context.Context, common *CommonHeader, identities []string, keys *format.Keys) (*DomainHeader, []byte, error)
	RequestDecryptionKey(ctx context.Context, common *CommonHeader, header *DomainHeader, signature []byte) (*format.Keys, error)
}

// Environment はヘッダーが利用する外部コンポーネント。
type Environment struct {
	Machine    string
	Protector  format.Protector
	Authorizer format.Authorizer
	Runner     format.Runner
	Domain     DomainClient // ドメインに参加していない場合は nil
}

// Header はバージョン1の内部ヘッダー。
type Header struct {
	Common     *CommonHeader
	Machines   []*MachineHeader
	Domain     *DomainHeader
	Signatures *HeaderSignatures

	settings domain.CryptoSettings
	env      *Environment
}

type body struct {
	Common     *CommonHeader     `xml:"XDPInternalCommonHeader"`
	Machines   []*MachineHeader  `xml:"XDPInternalMachineHeader"`
	Domain     *DomainHeader     `xml:"XDPInternalDomainHeader"`
	Signatures *HeaderSignatures `xml:"XDPInternalHeaderSignatures"`
}

// Version は format.InternalHeader を実装する。
func (h *Header) Version() uint16 { return Version }

// MarshalInner は XDPInternalHeader 要素の中身をシリアライズする。
func (h *Header) MarshalInner() ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	encode := func(name string, v any) error {
		if err := enc.EncodeElement(v, element(name)); err != nil {
			return fmt.Errorf("serializing %s: %w", name, err)
		}
		return nil
	}

	if h.Common != nil {
		if err := encode("XDPInternalCommonHeader", h.Common); err != nil {
			return nil, err
		}
	}
	for _, m := range h.Machines {
		if err := encode("XDPInternalMachineHeader", m); err != nil {
			return nil, err
		}
	}
	if h.Domain != nil {
		if err := encode("XDPInternalDomainHeader", h.Domain); err != nil {
			return nil, err
		}
	}
	if h.Signatures != nil {
		if err := encode("XDPInternalHeaderSignatures", h.Signatures); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("serializing header: %w", err)
	}
	return buf.Bytes(), nil
}

func parse(inner []byte, env *Environment) (*Header, error) {
	doc := make([]byte, 0, len(inner)+48)
	doc = append(doc, "<XDPInternalHeaderV1>"...)
	doc = append(doc, inner...)
	doc = append(doc, "</XDPInternalHeaderV1>"...)

	var b body
	if err := xml.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("%w: deserializing V1 header: %v", domain.ErrInvalidFormat, err)
	}
	h := &Header{
		Common:     b.Common,
		Machines:   b.Machines,
		Domain:     b.Domain,
		Signatures: b.Signatures,
		env:        env,
	}
	if h.Common != nil {
		h.settings = h.Common.Settings()
	}
	return h, nil
}

// Validate はヘッダーの構造と意味を検証する。
func (h *Header) Validate() error {
	if h.Common == nil {
		return domain.NewBadParameter("XDPInternalHeaderV1.XDPInternalCommonHeader", "Value was null")
	}
	_, signatureLen, err := h.Common.Validate()
	if err != nil {
		return err
	}
	if len(h.Machines) > 1 {
		return domain.NewBadParameter("XDPInternalHeaderV1.XDPInternalMachineHeader",
			"Only one machine header is currently supported")
	}
	if len(h.Machines) == 0 && h.Domain == nil {
		return domain.NewBadParameter("XDPInternalHeaderV1",
			"Either a machine header or a domain header must be present")
	}
	for _, m := range h.Machines {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	if h.Domain != nil {
		if err := h.Domain.Validate(); err != nil {
			return err
		}
	}
	return h.Signatures.Validate(h.Machines, h.Domain != nil, signatureLen)
}

// Populate は暗号化時にヘッダーを構築する。
// ドメインサービスが設定の変更を要求した場合は domain.UpdatedSettingsError をそのまま返す。
func (h *Header) Populate(ctx context.Context, keys *format.Keys, dataSignature []byte, recipients domain.Recipients) error {
	if h.Common != nil {
		return fmt.Errorf("%w: header is already populated", domain.ErrGeneral)
	}
	common := NewCommonHeader(h.settings, keys.IV, dataSignature)

	var domainHeader *DomainHeader
	var domainSignature []byte
	if recipients.HasDomain() {
		if h.env.Domain == nil {
			return fmt.Errorf("%w: no domain service is configured", domain.ErrNotSupported)
		}
		dh, sig, err := h.env.Domain.RequestDomainHeader(ctx, common, recipients.Domain, keys)
		if err != nil {
			return err
		}
		domainHeader, domainSignature = dh, sig
	}

	hosts := make([]string, 0, len(recipients.Machines))
	for host := range recipients.Machines {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	var machines []*MachineHeader
	for _, host := range hosts {
		// 現在のホスト以外で鍵を保護する手段はない
		if !strings.EqualFold(host, h.env.Machine) {
			return fmt.Errorf("%w: cannot protect keys for remote machine '%s'", domain.ErrNotSupported, host)
		}
		mh, err := newMachineHeader(ctx, h.env.Protector, h.env.Machine, recipients.Machines[host], keys)
		if err != nil {
			return err
		}
		machines = append(machines, mh)
	}

	sigs := &HeaderSignatures{DomainSignature: domainSignature}
	for _, mh := range machines {
		// ローカルマシンは信頼されているため、ここで署名する
		value, err := mh.sign(common, keys.SignatureKey)
		if err != nil {
			return fmt.Errorf("signing machine header: %w", err)
		}
		sigs.MachineSignatures = append([]MachineSignature{{Hostname: mh.Hostname, Value: value}}, sigs.MachineSignatures...)
	}

	h.Common = common
	h.Machines = machines
	h.Domain = domainHeader
	h.Signatures = sigs

	slog.DebugContext(ctx, "populated V1 header",
		"operation", "populate",
		"machine_headers", len(machines),
		"domain_header", domainHeader != nil,
	)
	return h.Validate()
}

// DecryptionParameters は呼び出し元の種別に応じて鍵を取得する。
// ドメインの呼び出し元ではドメイン署名の検証をドメインサービスに委ねる。
func (h *Header) DecryptionParameters(ctx context.Context, caller domain.Principal) (*format.DecryptionParameters, error) {
	if h.isDomainCaller(caller) {
		return h.domainParameters(ctx, caller)
	}
	return h.machineParameters(ctx, caller)
}

func (h *Header) isDomainCaller(caller domain.Principal) bool {
	return caller.Context != "" && !strings.EqualFold(caller.Context, h.env.Machine)
}

func (h *Header) domainParameters(ctx context.Context, caller domain.Principal) (*format.DecryptionParameters, error) {
	if h.Domain == nil {
		return nil, fmt.Errorf("%w: %s is a domain identity and no domain header is present", domain.ErrAuthorization, caller.Identity())
	}
	if h.env.Domain == nil {
		return nil, fmt.Errorf("%w: no domain service is configured", domain.ErrNotSupported)
	}
	keys, err := h.env.Domain.RequestDecryptionKey(ctx, h.Common, h.Domain, h.Signatures.DomainSignature)
	if err != nil {
		return nil, err
	}
	keys.IV = append([]byte(nil), h.Common.EncryptionIV...)
	return &format.DecryptionParameters{
		Settings:      h.Common.Settings(),
		Keys:          keys,
		DataSignature: append([]byte(nil), h.Common.DataSignature...),
	}, nil
}

func (h *Header) machineParameters(ctx context.Context, caller domain.Principal) (*format.DecryptionParameters, error) {
	var mh *MachineHeader
	for _, m := range h.Machines {
		if strings.EqualFold(m.Hostname, h.env.Machine) {
			mh = m
			break
		}
	}
	if mh == nil {
		return nil, fmt.Errorf("%w: no machine header for '%s'", domain.ErrAuthorization, h.env.Machine)
	}

	keys, err := mh.KeysFor(ctx, h.env, caller.SID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: %s is not authorized to decrypt this data", domain.ErrAuthorization, caller.Identity())
	}

	stored := h.Signatures.ForHost(mh.Hostname)
	if stored == nil {
		keys.Dispose()
		return nil, fmt.Errorf("%w: no signature for machine '%s'", domain.ErrSignatureVerification, mh.Hostname)
	}
	ok, err := mh.verify(h.Common, keys.SignatureKey, stored.Value)
	if err != nil {
		keys.Dispose()
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureVerification, err)
	}
	if !ok {
		keys.Dispose()
		return nil, fmt.Errorf("%w: machine header signature mismatch", domain.ErrSignatureVerification)
	}

	keys.IV = append([]byte(nil), h.Common.EncryptionIV...)
	return &format.DecryptionParameters{
		Settings:      h.Common.Settings(),
		Keys:          keys,
		DataSignature: append([]byte(nil), h.Common.DataSignature...),
	}, nil
}
