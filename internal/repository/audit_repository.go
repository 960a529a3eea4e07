package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"xdp-service/internal/domain"
)

// KeyReleaseAuditModel は key_release_audit テーブルのモデル。
type KeyReleaseAuditModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	Operation    string    `gorm:"type:varchar(64);not null"`
	CallerSID    string    `gorm:"column:caller_sid;type:varchar(184);not null;index:idx_key_release_audit_caller"`
	DomainServer string    `gorm:"type:varchar(255);not null;default:''"`
	Result       string    `gorm:"type:varchar(16);not null"`
	Reason       string    `gorm:"type:varchar(1024);not null;default:''"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (KeyReleaseAuditModel) TableName() string {
	return "key_release_audit"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KeyReleaseAuditModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// AuditRepository は鍵の払い出し判定の監査レコードを保存する。
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository は新しいAuditRepositoryを生成する。
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create は監査レコードを保存する。
func (r *AuditRepository) Create(ctx context.Context, record *domain.KeyReleaseRecord) error {
	model := &KeyReleaseAuditModel{
		ID:           record.ID,
		Operation:    record.Operation,
		CallerSID:    record.CallerSID,
		DomainServer: record.DomainServer,
		Result:       string(record.Result),
		Reason:       record.Reason,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create key release record",
			"operation", "create_audit",
			"caller_sid", record.CallerSID,
			"result", record.Result,
			"error", err,
		)
		return err
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	return nil
}

// FindByCallerSID は呼び出し元の監査レコードを新しい順に取得する。
func (r *AuditRepository) FindByCallerSID(ctx context.Context, callerSID string, limit int) ([]*domain.KeyReleaseRecord, error) {
	var models []KeyReleaseAuditModel
	err := r.db.WithContext(ctx).
		Where("caller_sid = ?", callerSID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find key release records",
			"operation", "find_audit_by_caller_sid",
			"caller_sid", callerSID,
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.KeyReleaseRecord, len(models))
	for i, m := range models {
		records[i] = &domain.KeyReleaseRecord{
			ID:           m.ID,
			Operation:    m.Operation,
			CallerSID:    m.CallerSID,
			DomainServer: m.DomainServer,
			Result:       domain.KeyReleaseResult(m.Result),
			Reason:       m.Reason,
			CreatedAt:    m.CreatedAt,
		}
	}
	return records, nil
}
