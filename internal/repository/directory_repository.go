package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"xdp-service/internal/domain"
)

// PrincipalModel は principals テーブルのモデル。
type PrincipalModel struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	SID       string    `gorm:"column:sid;type:varchar(184);not null;index:idx_principals_sid"`
	Context   string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_principals_context_name"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_principals_context_name"`
	Type      string    `gorm:"type:varchar(16);not null;default:'user'"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (PrincipalModel) TableName() string {
	return "principals"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (p *PrincipalModel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (p *PrincipalModel) toDomain() domain.DirectoryEntry {
	return domain.DirectoryEntry{
		SID:       p.SID,
		Context:   p.Context,
		Name:      p.Name,
		Type:      domain.IdentityType(p.Type),
		CreatedAt: p.CreatedAt,
	}
}

// GroupMemberModel は group_members テーブルのモデル。
type GroupMemberModel struct {
	GroupSID  string    `gorm:"column:group_sid;type:varchar(184);primaryKey"`
	MemberSID string    `gorm:"column:member_sid;type:varchar(184);primaryKey;index:idx_group_members_member"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (GroupMemberModel) TableName() string {
	return "group_members"
}

// DirectoryRepository は ID ディレクトリへのアクセスを提供する。
// SID は大文字で保存し、名前とコンテキストは大文字小文字を区別せずに検索する。
type DirectoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository は新しいDirectoryRepositoryを生成する。
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// LookupName はコンテキストと名前に一致するプリンシパルを取得する。
func (r *DirectoryRepository) LookupName(ctx context.Context, contextName, name string) ([]domain.DirectoryEntry, error) {
	var models []PrincipalModel
	err := r.db.WithContext(ctx).
		Where("LOWER(context) = ? AND LOWER(name) = ?", strings.ToLower(contextName), strings.ToLower(name)).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up principal by name",
			"operation", "lookup_name",
			"context", contextName,
			"name", name,
			"error", err,
		)
		return nil, err
	}
	return toEntries(models), nil
}

// LookupSID は SID に一致するプリンシパルを取得する。
func (r *DirectoryRepository) LookupSID(ctx context.Context, sid string) ([]domain.DirectoryEntry, error) {
	var models []PrincipalModel
	err := r.db.WithContext(ctx).
		Where("sid = ?", strings.ToUpper(sid)).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up principal by sid",
			"operation", "lookup_sid",
			"sid", sid,
			"error", err,
		)
		return nil, err
	}
	return toEntries(models), nil
}

// IsMember は memberSID が groupSID に入れ子のグループを含めて所属するかを返す。
func (r *DirectoryRepository) IsMember(ctx context.Context, memberSID, groupSID string) (bool, error) {
	target := strings.ToUpper(groupSID)
	visited := map[string]bool{strings.ToUpper(memberSID): true}
	frontier := []string{strings.ToUpper(memberSID)}

	for len(frontier) > 0 {
		var groups []string
		err := r.db.WithContext(ctx).
			Model(&GroupMemberModel{}).
			Where("member_sid IN ?", frontier).
			Pluck("group_sid", &groups).Error
		if err != nil {
			slog.ErrorContext(ctx, "failed to query group membership",
				"operation", "is_member",
				"member_sid", memberSID,
				"group_sid", groupSID,
				"error", err,
			)
			return false, err
		}

		frontier = frontier[:0]
		for _, g := range groups {
			if g == target {
				return true, nil
			}
			if !visited[g] {
				visited[g] = true
				frontier = append(frontier, g)
			}
		}
	}
	return false, nil
}

// CreatePrincipal はプリンシパルを登録する。
func (r *DirectoryRepository) CreatePrincipal(ctx context.Context, entry *domain.DirectoryEntry) error {
	model := &PrincipalModel{
		SID:     strings.ToUpper(entry.SID),
		Context: entry.Context,
		Name:    entry.Name,
		Type:    string(entry.Type),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create principal",
			"operation", "create_principal",
			"sid", entry.SID,
			"context", entry.Context,
			"name", entry.Name,
			"error", err,
		)
		return err
	}
	entry.SID = model.SID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// AddMember は memberSID を groupSID のメンバーとして登録する。
func (r *DirectoryRepository) AddMember(ctx context.Context, groupSID, memberSID string) error {
	model := &GroupMemberModel{
		GroupSID:  strings.ToUpper(groupSID),
		MemberSID: strings.ToUpper(memberSID),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to add group member",
			"operation", "add_member",
			"group_sid", groupSID,
			"member_sid", memberSID,
			"error", err,
		)
		return err
	}
	return nil
}

// List はコンテキストのプリンシパルを名前順に取得する。contextName が空の場合は全件。
func (r *DirectoryRepository) List(ctx context.Context, contextName string) ([]domain.DirectoryEntry, error) {
	var models []PrincipalModel
	q := r.db.WithContext(ctx).Order("context ASC, name ASC")
	if contextName != "" {
		q = q.Where("LOWER(context) = ?", strings.ToLower(contextName))
	}
	if err := q.Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list principals",
			"operation", "list_principals",
			"context", contextName,
			"error", err,
		)
		return nil, err
	}
	return toEntries(models), nil
}

func toEntries(models []PrincipalModel) []domain.DirectoryEntry {
	entries := make([]domain.DirectoryEntry, len(models))
	for i := range models {
		entries[i] = models[i].toDomain()
	}
	return entries
}
