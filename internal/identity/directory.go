package identity

import (
	"context"

	"xdp-service/internal/domain"
)

// Directory は ID ストアへの問い合わせを抽象化する。
type Directory interface {
	// LookupName はコンテキストと名前に一致するプリンシパルを返す。
	LookupName(ctx context.Context, contextName, name string) ([]domain.DirectoryEntry, error)
	// LookupSID は SID に一致するプリンシパルを返す。
	LookupSID(ctx context.Context, sid string) ([]domain.DirectoryEntry, error)
	// IsMember は memberSID が groupSID に (入れ子を含めて) 所属するかを返す。
	IsMember(ctx context.Context, memberSID, groupSID string) (bool, error)
}
