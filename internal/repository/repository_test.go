package repository

import (
	"context"
	"io/fs"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"xdp-service/internal/domain"
	"xdp-service/migrations"
)

// setupTestDB はマイグレーションを適用したインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// インメモリDBは接続ごとに別のデータベースになる
	sqlDB.SetMaxOpenConns(1)

	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	for _, f := range files {
		sql, err := fs.ReadFile(migrations.FS, f)
		if err != nil {
			t.Fatalf("failed to read %s: %v", f, err)
		}
		if err := db.Exec(string(sql)).Error; err != nil {
			t.Fatalf("failed to apply %s: %v", f, err)
		}
	}
	return db
}

func seedDirectory(t *testing.T, repo *DirectoryRepository) {
	t.Helper()
	ctx := context.Background()

	entries := []domain.DirectoryEntry{
		{SID: "S-1-5-21-9-1001", Context: "CORP", Name: "bob", Type: domain.IdentityTypeUser},
		{SID: "S-1-5-21-9-1002", Context: "CORP", Name: "carol", Type: domain.IdentityTypeUser},
		{SID: "S-1-5-21-9-2001", Context: "CORP", Name: "Engineers", Type: domain.IdentityTypeGroup},
		{SID: "S-1-5-21-9-2002", Context: "CORP", Name: "Staff", Type: domain.IdentityTypeGroup},
		{SID: "S-1-5-21-9-2003", Context: "CORP", Name: "Data Recovery", Type: domain.IdentityTypeGroup},
	}
	for i := range entries {
		if err := repo.CreatePrincipal(ctx, &entries[i]); err != nil {
			t.Fatalf("failed to create principal: %v", err)
		}
	}

	// bob -> Engineers -> Staff
	for _, m := range [][2]string{
		{"S-1-5-21-9-2001", "S-1-5-21-9-1001"},
		{"S-1-5-21-9-2002", "S-1-5-21-9-2001"},
		// 循環しても停止すること
		{"S-1-5-21-9-2001", "S-1-5-21-9-2002"},
	} {
		if err := repo.AddMember(ctx, m[0], m[1]); err != nil {
			t.Fatalf("failed to add member: %v", err)
		}
	}
}

func TestDirectoryRepository_LookupName(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(setupTestDB(t))
	seedDirectory(t, repo)

	entries, err := repo.LookupName(ctx, "corp", "BOB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].SID != "S-1-5-21-9-1001" {
		t.Fatalf("want bob, got %+v", entries)
	}

	entries, err = repo.LookupName(ctx, "CORP", "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("want no entries, got %+v", entries)
	}
}

func TestDirectoryRepository_LookupSID(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(setupTestDB(t))
	seedDirectory(t, repo)

	entries, err := repo.LookupSID(ctx, "s-1-5-21-9-2001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != domain.IdentityTypeGroup {
		t.Fatalf("want Engineers group, got %+v", entries)
	}
}

func TestDirectoryRepository_IsMember(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(setupTestDB(t))
	seedDirectory(t, repo)

	tests := []struct {
		name   string
		member string
		group  string
		want   bool
	}{
		{"直接所属", "S-1-5-21-9-1001", "S-1-5-21-9-2001", true},
		{"入れ子", "S-1-5-21-9-1001", "S-1-5-21-9-2002", true},
		{"小文字の SID", "s-1-5-21-9-1001", "s-1-5-21-9-2002", true},
		{"所属なし", "S-1-5-21-9-1002", "S-1-5-21-9-2001", false},
		{"別グループ", "S-1-5-21-9-1001", "S-1-5-21-9-2003", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.IsMember(ctx, tt.member, tt.group)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDirectoryRepository_CreatePrincipal_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(setupTestDB(t))
	seedDirectory(t, repo)

	err := repo.CreatePrincipal(ctx, &domain.DirectoryEntry{SID: "S-1-5-21-9-9999", Context: "CORP", Name: "bob", Type: domain.IdentityTypeUser})
	if err == nil {
		t.Fatal("want error for duplicate context and name")
	}
}

func TestDirectoryRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(setupTestDB(t))
	seedDirectory(t, repo)
	if err := repo.CreatePrincipal(ctx, &domain.DirectoryEntry{SID: "S-1-5-21-1-1001", Context: "HOST01", Name: "alice", Type: domain.IdentityTypeUser}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("want 6 principals, got %d", len(all))
	}

	local, err := repo.List(ctx, "host01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(local) != 1 || local[0].Name != "alice" {
		t.Errorf("want alice only, got %+v", local)
	}
}

func TestAuditRepository_CreateFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(setupTestDB(t))

	for _, result := range []domain.KeyReleaseResult{domain.KeyReleaseGranted, domain.KeyReleaseDenied} {
		rec := &domain.KeyReleaseRecord{
			Operation:    "request_decryption_key",
			CallerSID:    "S-1-5-21-9-1001",
			DomainServer: "DS01",
			Result:       result,
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.ID == "" {
			t.Error("want generated ID")
		}
	}

	records, err := repo.FindByCallerSID(ctx, "S-1-5-21-9-1001", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records, got %d", len(records))
	}
}

func TestMigrationRepository_RecordAndFind(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	repo := NewMigrationRepository(db)

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied, err := repo.IsMigrationApplied(ctx, "002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("want not applied")
	}

	if err := repo.RecordMigration(ctx, nil, "002", "create_principals"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applied, err = repo.IsMigrationApplied(ctx, "002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("want applied")
	}

	all, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 || all[0].Name != "create_principals" || all[0].AppliedAt == nil {
		t.Errorf("unexpected migrations: %+v", all)
	}
}
