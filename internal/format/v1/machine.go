package v1

import (
	"context"
	"fmt"
	"log/slog"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	"xdp-service/internal/xcrypto"
)

// MachineHeader はホストごとのローカル ID と、そのホストで保護されたキーバンドル。
type MachineHeader struct {
	Hostname             string                `xml:"Hostname"`
	AuthorizedIdentities *AuthorizedIdentities `xml:"XDPAuthorizedIdentities"`
	EncryptedKeys        format.HexBytes       `xml:"XDPEncryptedKeys,omitempty"`
}

func newMachineHeader(ctx context.Context, protector format.Protector, hostname string, sids []string, keys *format.Keys) (*MachineHeader, error) {
	raw, err := keys.Marshal()
	if err != nil {
		return nil, err
	}
	defer xcrypto.Zero(raw)

	wrapped, err := protector.Protect(ctx, raw, format.MachineScope(hostname))
	if err != nil {
		return nil, fmt.Errorf("protecting machine keys: %w", err)
	}
	return &MachineHeader{
		Hostname:             hostname,
		AuthorizedIdentities: NewAuthorizedIdentities(sids),
		EncryptedKeys:        wrapped,
	}, nil
}

// Validate は MachineHeader を検証する。
func (m *MachineHeader) Validate() error {
	if m == nil {
		return domain.NewBadParameter("XDPInternalMachineHeader", "Value was null")
	}
	if m.Hostname == "" {
		return domain.NewBadParameter("XDPInternalMachineHeader.Hostname", "Value was null or empty")
	}
	if err := m.AuthorizedIdentities.Validate("XDPInternalMachineHeader.XDPAuthorizedIdentities"); err != nil {
		return err
	}
	if len(m.EncryptedKeys) == 0 {
		return domain.NewBadParameter("XDPInternalMachineHeader.XDPEncryptedKeys", "Value was null or empty")
	}
	return nil
}

// KeysFor は callerSID が許可されていればキーバンドルを復元する。
// 許可されていない場合は nil を返す。保護の解除はサービス側のワーカーで行う。
func (m *MachineHeader) KeysFor(ctx context.Context, env *Environment, callerSID string) (*format.Keys, error) {
	ok, err := env.Authorizer.Authorized(ctx, callerSID, m.AuthorizedIdentities.List())
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.DebugContext(ctx, "caller not in machine header identities",
			"operation", "machine_keys_for",
			"caller_sid", callerSID,
			"hostname", m.Hostname,
		)
		return nil, nil
	}

	// ヘッダーのホスト名は署名の検証前なので、スコープは自ホストの名前から作る
	raw, err := env.Runner.RunAsService(ctx, func(ctx context.Context) ([]byte, error) {
		return env.Protector.Unprotect(ctx, m.EncryptedKeys, format.MachineScope(env.Machine))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: unprotecting machine keys: %v", domain.ErrGeneral, err)
	}
	defer xcrypto.Zero(raw)

	return format.UnmarshalKeys(raw)
}

func (m *MachineHeader) sign(common *CommonHeader, key []byte) ([]byte, error) {
	signer, err := common.signer()
	if err != nil {
		return nil, err
	}
	data, err := signatureData(common, "XDPInternalMachineHeader", m)
	if err != nil {
		return nil, err
	}
	return signer.Sign(data, key)
}

func (m *MachineHeader) verify(common *CommonHeader, key, signature []byte) (bool, error) {
	signer, err := common.signer()
	if err != nil {
		return false, err
	}
	data, err := signatureData(common, "XDPInternalMachineHeader", m)
	if err != nil {
		return false, err
	}
	return signer.Verify(data, signature, key)
}
