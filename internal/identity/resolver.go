package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"xdp-service/internal/domain"
	"xdp-service/internal/worker"
)

// DefaultResolveTimeout は並行解決全体の期限。
const DefaultResolveTimeout = 30 * time.Second

// Resolver は ID 表記を SID に解決し、受信者ごとに振り分ける。
type Resolver struct {
	machine    string
	domainName string
	dir        Directory
	cache      *Cache
	pool       *worker.Pool
	timeout    time.Duration
}

// NewResolver は新しい Resolver を生成する。domainName が空の場合はドメインに参加していない。
func NewResolver(machine, domainName string, dir Directory, cache *Cache, pool *worker.Pool) *Resolver {
	return &Resolver{
		machine:    machine,
		domainName: domainName,
		dir:        dir,
		cache:      cache,
		pool:       pool,
		timeout:    DefaultResolveTimeout,
	}
}

// Resolve は解析済みの表記をディレクトリで解決する。
func (r *Resolver) Resolve(ctx context.Context, p Parsed) (domain.IdentityInfo, error) {
	if p.SID != "" {
		return r.resolveSID(ctx, p.SID)
	}
	if r.domainName != "" && !strings.EqualFold(p.Context, r.machine) && DomainsEqual(p.Context, r.domainName) {
		// 短い名前で書かれたドメインも設定されたドメイン名で引く
		p.Context = r.domainName
	}
	if info, ok := r.cache.ByName(p.Context, p.Name); ok {
		return info, nil
	}

	entries, err := r.dir.LookupName(ctx, p.Context, p.Name)
	if err != nil {
		return domain.IdentityInfo{}, fmt.Errorf("looking up %s: %w", p.Identity(), err)
	}
	info, err := single(p.Identity(), entries)
	if err != nil {
		return domain.IdentityInfo{}, err
	}
	r.cache.Put(info)
	return info, nil
}

func (r *Resolver) resolveSID(ctx context.Context, sid string) (domain.IdentityInfo, error) {
	if info, ok := r.cache.BySID(sid); ok {
		return info, nil
	}
	if IsWellKnownSID(sid) {
		info := domain.IdentityInfo{SID: sid, Context: r.machine, Type: domain.IdentityTypeUser}
		r.cache.Put(info)
		return info, nil
	}

	entries, err := r.dir.LookupSID(ctx, sid)
	if err != nil {
		return domain.IdentityInfo{}, fmt.Errorf("looking up %s: %w", sid, err)
	}
	info, err := single(sid, entries)
	if err != nil {
		return domain.IdentityInfo{}, err
	}
	r.cache.Put(info)
	return info, nil
}

func single(identity string, entries []domain.DirectoryEntry) (domain.IdentityInfo, error) {
	switch len(entries) {
	case 0:
		return domain.IdentityInfo{}, fmt.Errorf("%w: '%s' could not be resolved", domain.ErrInvalidIdentity, identity)
	case 1:
		e := entries[0]
		return domain.IdentityInfo{SID: e.SID, Name: e.Name, Context: e.Context, Type: e.Type, Created: time.Now()}, nil
	default:
		return domain.IdentityInfo{}, fmt.Errorf("%w: '%s' matched %d principals", domain.ErrInvalidIdentity, identity, len(entries))
	}
}

type resolution struct {
	identity string
	info     domain.IdentityInfo
}

// ResolveAll は identities を並行して解決する。
// 失敗した ID はまとめて1つの domain.ErrInvalidIdentity として返す。
func (r *Resolver) ResolveAll(ctx context.Context, parsed []Parsed) ([]domain.IdentityInfo, error) {
	deadline := time.Now().Add(r.timeout)
	futures := make([]*worker.Future[resolution], len(parsed))
	for i, p := range parsed {
		futures[i] = worker.Submit(ctx, r.pool, func(ctx context.Context) (resolution, error) {
			info, err := r.Resolve(ctx, p)
			return resolution{identity: p.Identity(), info: info}, err
		})
	}

	var failed []string
	infos := make([]domain.IdentityInfo, 0, len(parsed))
	for i, f := range futures {
		res, err := f.Wait(ctx, time.Until(deadline))
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidIdentity) {
				slog.ErrorContext(ctx, "failed to resolve identity",
					"operation", "resolve_identity",
					"identity", parsed[i].Identity(),
					"error", err,
				)
			}
			failed = append(failed, parsed[i].Identity())
			continue
		}
		infos = append(infos, res.info)
	}
	if len(failed) > 0 {
		return nil, fmt.Errorf("%w: the following identities could not be resolved: %s",
			domain.ErrInvalidIdentity, strings.Join(failed, ", "))
	}
	return infos, nil
}

// Bucket は identities をローカルマシン宛てとドメイン宛てに振り分ける。
// ローカルの ID は SID に解決し、ドメインの ID はドメインサービスでの解決に回す。
func (r *Resolver) Bucket(ctx context.Context, identities []string) (domain.Recipients, error) {
	recipients := domain.Recipients{Machines: make(map[string][]string)}

	var local []Parsed
	var invalid []string
	for _, id := range identities {
		p, err := ParseContext(id, r.machine)
		if err != nil {
			invalid = append(invalid, id)
			continue
		}
		switch {
		case strings.EqualFold(p.Context, r.machine):
			local = append(local, p)
		case r.domainName != "" && DomainsEqual(p.Context, r.domainName):
			recipients.Domain = append(recipients.Domain, p.Identity())
		default:
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return domain.Recipients{}, fmt.Errorf("%w: the following identities are not local or in the joined domain: %s",
			domain.ErrInvalidIdentity, strings.Join(invalid, ", "))
	}

	if len(local) > 0 {
		infos, err := r.ResolveAll(ctx, local)
		if err != nil {
			return domain.Recipients{}, err
		}
		recipients.Machines[r.machine] = UniqueSIDs(infos)
	}

	slog.DebugContext(ctx, "bucketed identities",
		"operation", "bucket_identities",
		"local", len(local),
		"domain", len(recipients.Domain),
	)
	return recipients, nil
}

// UniqueSIDs は重複を除いた SID を昇順で返す。
func UniqueSIDs(infos []domain.IdentityInfo) []string {
	seen := make(map[string]bool, len(infos))
	sids := make([]string, 0, len(infos))
	for _, info := range infos {
		key := strings.ToUpper(info.SID)
		if seen[key] {
			continue
		}
		seen[key] = true
		sids = append(sids, info.SID)
	}
	sort.Slice(sids, func(i, j int) bool { return strings.ToUpper(sids[i]) < strings.ToUpper(sids[j]) })
	return sids
}
