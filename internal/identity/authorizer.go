package identity

import (
	"context"
	"fmt"
	"log/slog"

	"xdp-service/internal/domain"
)

// Authorizer は呼び出し元が許可された ID に含まれるかを判定する。
// format.Authorizer を実装する。
type Authorizer struct {
	dir   Directory
	cache *Cache
}

// NewAuthorizer は新しい Authorizer を生成する。
func NewAuthorizer(dir Directory, cache *Cache) *Authorizer {
	return &Authorizer{dir: dir, cache: cache}
}

// Authorized は callerSID が identities に直接含まれるか、含まれるグループに所属するかを返す。
func (a *Authorizer) Authorized(ctx context.Context, callerSID string, identities []string) (bool, error) {
	for _, id := range identities {
		if domain.EqualSID(id, callerSID) {
			return true, nil
		}
	}

	for _, id := range identities {
		entries, err := a.dir.LookupSID(ctx, id)
		if err != nil {
			return false, fmt.Errorf("looking up %s: %w", id, err)
		}
		if len(entries) > 1 {
			return false, fmt.Errorf("%w: '%s' matched %d principals", domain.ErrInvalidIdentity, id, len(entries))
		}
		if len(entries) == 0 {
			slog.DebugContext(ctx, "authorized identity not in directory",
				"operation", "authorize",
				"identity", id,
			)
			continue
		}
		if entries[0].Type != domain.IdentityTypeGroup {
			continue
		}

		member, err := a.isMember(ctx, callerSID, entries[0].SID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	return false, nil
}

func (a *Authorizer) isMember(ctx context.Context, memberSID, groupSID string) (bool, error) {
	if member, found := a.cache.MemberOf(memberSID, groupSID); found {
		return member, nil
	}
	member, err := a.dir.IsMember(ctx, memberSID, groupSID)
	if err != nil {
		return false, fmt.Errorf("checking membership of %s in %s: %w", memberSID, groupSID, err)
	}
	a.cache.SetMemberOf(memberSID, groupSID, member)
	return member, nil
}
