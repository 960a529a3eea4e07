package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"xdp-service/internal/domain"
	"xdp-service/internal/format"
	v1 "xdp-service/internal/format/v1"
	"xdp-service/internal/identity"
	"xdp-service/internal/middleware"
	"xdp-service/internal/protocol"
	"xdp-service/internal/xcrypto"
)

// 監査レコードの操作名。
const (
	OperationRequestDomainHeader  = "request_domain_header"
	OperationRequestDecryptionKey = "request_decryption_key"
)

// IdentityResolver はドメインの ID を解決する。
type IdentityResolver interface {
	Resolve(ctx context.Context, p identity.Parsed) (domain.IdentityInfo, error)
}

// AuditRepository は監査レコードの保存先。
type AuditRepository interface {
	Create(ctx context.Context, record *domain.KeyReleaseRecord) error
}

// DomainConfig はドメインサービスの設定。
type DomainConfig struct {
	Machine           string // ドメインヘッダーの XDPDomainServer になる
	DomainName        string
	DataRecoveryGroup string
	UpdateClient      bool
	Settings          domain.CryptoSettings
}

// DomainService はドメインの ID に対する鍵の保護と開示を行う。
// protocol.Authority を実装する。
type DomainService struct {
	cfg        DomainConfig
	resolver   IdentityResolver
	authorizer format.Authorizer
	protector  format.Protector
	runner     format.Runner
	audit      AuditRepository
}

// NewDomainService は新しいDomainServiceを生成する。
func NewDomainService(cfg DomainConfig, resolver IdentityResolver, authorizer format.Authorizer, protector format.Protector, runner format.Runner, audit AuditRepository) *DomainService {
	return &DomainService{
		cfg:        cfg,
		resolver:   resolver,
		authorizer: authorizer,
		protector:  protector,
		runner:     runner,
		audit:      audit,
	}
}

func (s *DomainService) scope() string {
	return format.DomainScope(s.cfg.Machine)
}

// RequestDomainHeader はキーバンドルを保護し、署名したドメインヘッダーを返す。
func (s *DomainService) RequestDomainHeader(ctx context.Context, caller domain.Principal, req *protocol.RequestDomainHeader) (*protocol.ResponseDomainHeader, error) {
	defer req.Keys.Dispose()
	ctx, span := tracer.Start(ctx, "DomainService.RequestDomainHeader")
	defer span.End()

	if err := req.Identities.Validate("XDPAuthorizedIdentities"); err != nil {
		return nil, err
	}
	encryptionKeyLen, signatureKeyLen, err := req.Common.Validate()
	if err != nil {
		return nil, err
	}
	if err := req.Keys.Validate(encryptionKeyLen, signatureKeyLen); err != nil {
		return nil, err
	}
	if s.cfg.UpdateClient && !req.Common.MatchesSettings(s.cfg.Settings) {
		slog.InfoContext(ctx, "client crypto settings differ from domain settings",
			"operation", OperationRequestDomainHeader,
			"caller_sid", caller.SID,
			"client_settings", req.Common.Settings().String(),
		)
		return nil, &domain.UpdatedSettingsError{Settings: s.cfg.Settings}
	}

	sids, err := s.VerifyIdentities(ctx, req.Identities.List())
	if err != nil {
		return nil, err
	}

	raw, err := req.Keys.Marshal()
	if err != nil {
		return nil, err
	}
	defer xcrypto.Zero(raw)
	wrapped, err := s.protector.Protect(ctx, raw, s.scope())
	if err != nil {
		return nil, fmt.Errorf("protecting domain keys: %w", err)
	}

	header := v1.NewDomainHeader(s.cfg.Machine, sids, wrapped)
	signature, err := v1.SignDomainHeader(req.Common, header, req.Keys.SignatureKey)
	if err != nil {
		return nil, fmt.Errorf("signing domain header: %w", err)
	}

	s.record(ctx, OperationRequestDomainHeader, caller, domain.KeyReleaseGranted, "")
	return &protocol.ResponseDomainHeader{DomainHeader: header, DomainSignature: signature}, nil
}

// VerifyIdentities はドメインの ID を SID に解決する。
// データ回復グループが設定されていれば追加し、重複を除いて SID 順に並べる。
func (s *DomainService) VerifyIdentities(ctx context.Context, identities []string) ([]string, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no identities were specified", domain.ErrInvalidIdentity)
	}

	list := append([]string(nil), identities...)
	if group := s.cfg.DataRecoveryGroup; group != "" {
		p, err := identity.ParseContext(group, s.cfg.Machine)
		if err == nil && identity.DomainsEqual(p.Context, s.cfg.DomainName) {
			p.Context = s.cfg.DomainName
			if _, err := s.resolver.Resolve(ctx, p); err == nil {
				list = append(list, p.Identity())
			} else {
				slog.WarnContext(ctx, "data recovery group could not be resolved",
					"operation", "verify_identities",
					"group", group,
					"error", err,
				)
			}
		}
	}

	seen := make(map[string]bool, len(list))
	sids := make([]string, 0, len(list))
	for _, id := range list {
		p, err := identity.ParseContext(id, s.cfg.Machine)
		if err != nil {
			return nil, err
		}
		if !identity.DomainsEqual(p.Context, s.cfg.DomainName) {
			return nil, fmt.Errorf("%w: '%s' is not a valid Domain identity", domain.ErrInvalidIdentity, id)
		}
		// ディレクトリは設定されたドメイン名で登録されている
		p.Context = s.cfg.DomainName
		info, err := s.resolver.Resolve(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s' is not a valid Domain identity", domain.ErrInvalidIdentity, id)
		}
		key := strings.ToUpper(info.SID)
		if seen[key] {
			continue
		}
		seen[key] = true
		sids = append(sids, info.SID)
		slog.DebugContext(ctx, "added authorized identity",
			"operation", "verify_identities",
			"sid", info.SID,
		)
	}
	sort.Slice(sids, func(i, j int) bool { return strings.ToUpper(sids[i]) < strings.ToUpper(sids[j]) })
	return sids, nil
}

// RequestDecryptionKey は呼び出し元が許可されていればドメインヘッダーのキーバンドルを開示する。
func (s *DomainService) RequestDecryptionKey(ctx context.Context, caller domain.Principal, req *protocol.RequestDecryptionKey) (*protocol.ResponseDecryptionKey, error) {
	ctx, span := tracer.Start(ctx, "DomainService.RequestDecryptionKey")
	defer span.End()

	dh := req.DomainHeader
	if err := dh.Validate(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(dh.DomainServer, s.cfg.Machine) {
		return nil, domain.NewBadParameter("XDPInternalDomainHeader.XDPDomainServer", "Request sent to wrong machine")
	}
	_, signatureLen, err := req.Common.Validate()
	if err != nil {
		return nil, err
	}
	if err := v1.ValidateSignature(req.DomainSignature, signatureLen, "XDPInternalHeaderDomainSignature"); err != nil {
		return nil, err
	}

	// 自サーバーで保護した鍵でなければここで BadParameter になる
	raw, err := s.runner.RunAsService(ctx, func(ctx context.Context) ([]byte, error) {
		return s.protector.Unprotect(ctx, dh.EncryptedKeys, s.scope())
	})
	if err != nil {
		slog.DebugContext(ctx, "unprotect failed",
			"operation", OperationRequestDecryptionKey,
			"error", err,
		)
		s.record(ctx, OperationRequestDecryptionKey, caller, domain.KeyReleaseFailed, "unprotect failed")
		return nil, domain.NewBadParameter("XDPEncryptedKeys", "Either not encrypted on this server or not by XDP Domain Service account")
	}
	keys, err := format.UnmarshalKeys(raw)
	xcrypto.Zero(raw)
	if err != nil {
		s.record(ctx, OperationRequestDecryptionKey, caller, domain.KeyReleaseFailed, "malformed key bundle")
		return nil, domain.NewBadParameter("XDPEncryptedKeys", "Either not encrypted on this server or not by XDP Domain Service account")
	}

	ok, err := s.authorizer.Authorized(ctx, caller.SID, dh.AuthorizedIdentities.List())
	if err != nil {
		keys.Dispose()
		return nil, err
	}
	if !ok {
		keys.Dispose()
		s.record(ctx, OperationRequestDecryptionKey, caller, domain.KeyReleaseDenied, "not authorized")
		return nil, fmt.Errorf("%w: User '%s' was not authorized to decrypt the message", domain.ErrAuthorization, caller.Identity())
	}

	valid, err := v1.VerifyDomainHeader(req.Common, dh, keys.SignatureKey, req.DomainSignature)
	if err != nil || !valid {
		keys.Dispose()
		s.record(ctx, OperationRequestDecryptionKey, caller, domain.KeyReleaseDenied, "bad signature")
		return nil, fmt.Errorf("%w: The Domain Header had an invalid signature", domain.ErrSignatureVerification)
	}

	s.record(ctx, OperationRequestDecryptionKey, caller, domain.KeyReleaseGranted, "")
	return &protocol.ResponseDecryptionKey{Keys: keys}, nil
}

// record は監査レコードを保存する。保存の失敗は応答に影響させない。
func (s *DomainService) record(ctx context.Context, operation string, caller domain.Principal, result domain.KeyReleaseResult, reason string) {
	middleware.WriteAuditLog(ctx, operation, caller.SID, s.cfg.Machine, string(result))
	if s.audit == nil {
		return
	}
	rec := &domain.KeyReleaseRecord{
		Operation:    operation,
		CallerSID:    caller.SID,
		DomainServer: s.cfg.Machine,
		Result:       result,
		Reason:       reason,
	}
	if err := s.audit.Create(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to record key release",
			"operation", operation,
			"caller_sid", caller.SID,
			"error", err,
		)
	}
}
