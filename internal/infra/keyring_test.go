package infra

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"xdp-service/config"
)

func TestKeyringProtector_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewKeyringProtector(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	plain := []byte("<XDPKeys/>")
	protected, err := p.Protect(ctx, plain, "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Contains(protected, plain) {
		t.Error("protected data contains plaintext")
	}

	got, err := p.Unprotect(ctx, protected, "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("want %q, got %q", plain, got)
	}
}

func TestKeyringProtector_WrongScope(t *testing.T) {
	ctx := context.Background()
	p, err := NewKeyringProtector(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	protected, err := p.Protect(ctx, []byte("keys"), "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Unprotect(ctx, protected, "domain:DS01"); err == nil {
		t.Error("want error for a different scope")
	}
}

func TestKeyringProtector_Tampered(t *testing.T) {
	ctx := context.Background()
	p, err := NewKeyringProtector(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	protected, err := p.Protect(ctx, []byte("keys"), "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	protected[len(protected)-1] ^= 0xFF
	if _, err := p.Unprotect(ctx, protected, "machine:HOST01"); err == nil {
		t.Error("want error for tampered data")
	}
	if _, err := p.Unprotect(ctx, []byte{1, 2, 3}, "machine:HOST01"); err == nil {
		t.Error("want error for short data")
	}
}

func TestKeyringProtector_PersistsMasterKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p1, err := NewKeyringProtector(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	protected, err := p1.Protect(ctx, []byte("keys"), "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p1.Close()

	info, err := os.Stat(filepath.Join(dir, masterKeyFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("want 0600, got %v", info.Mode().Perm())
	}

	p2, err := NewKeyringProtector(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p2.Close()
	got, err := p2.Unprotect(ctx, protected, "machine:HOST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "keys" {
		t.Errorf("want keys, got %q", got)
	}
}

func TestNewKeyringProtector_BadMasterKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, masterKeyFile), []byte("short"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewKeyringProtector(dir); err == nil {
		t.Error("want error for short master key")
	}
}

func TestNewProtector(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{Protector: "keyring", KeyringDir: t.TempDir()}
	p, err := NewProtector(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if _, ok := p.(*KeyringProtector); !ok {
		t.Errorf("want *KeyringProtector, got %T", p)
	}

	if _, err := NewProtector(ctx, &config.Config{Protector: "kms"}); err == nil {
		t.Error("want error for kms without key name")
	}
	if _, err := NewProtector(ctx, &config.Config{Protector: "dpapi"}); err == nil {
		t.Error("want error for unknown protector")
	}
}
