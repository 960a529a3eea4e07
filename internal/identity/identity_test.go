package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"xdp-service/internal/domain"
	"xdp-service/internal/worker"
)

// --- モック ---

type mockDirectory struct {
	mu          sync.Mutex
	entries     []domain.DirectoryEntry
	members     map[string]bool // "member|group"
	memberCalls int
}

func (m *mockDirectory) LookupName(_ context.Context, contextName, name string) ([]domain.DirectoryEntry, error) {
	var out []domain.DirectoryEntry
	for _, e := range m.entries {
		if strings.EqualFold(e.Context, contextName) && strings.EqualFold(e.Name, name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDirectory) LookupSID(_ context.Context, sid string) ([]domain.DirectoryEntry, error) {
	var out []domain.DirectoryEntry
	for _, e := range m.entries {
		if domain.EqualSID(e.SID, sid) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDirectory) IsMember(_ context.Context, memberSID, groupSID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberCalls++
	return m.members[memberSID+"|"+groupSID], nil
}

func newTestDirectory() *mockDirectory {
	return &mockDirectory{
		entries: []domain.DirectoryEntry{
			{SID: "S-1-5-21-1-1001", Context: "HOST01", Name: "alice", Type: domain.IdentityTypeUser},
			{SID: "S-1-5-21-1-1002", Context: "HOST01", Name: "bob", Type: domain.IdentityTypeUser},
			{SID: "S-1-5-21-1-2001", Context: "HOST01", Name: "operators", Type: domain.IdentityTypeGroup},
			{SID: "S-1-5-21-1-3001", Context: "HOST01", Name: "dup1", Type: domain.IdentityTypeUser},
			{SID: "S-1-5-21-1-3001", Context: "HOST01", Name: "dup2", Type: domain.IdentityTypeUser},
		},
		members: map[string]bool{
			"S-1-5-21-1-1002|S-1-5-21-1-2001": true,
		},
	}
}

func newTestResolver(t *testing.T, dir Directory) *Resolver {
	t.Helper()
	cache := NewCache(time.Minute)
	pool := worker.NewPool(4)
	t.Cleanup(func() {
		pool.Stop()
		_ = cache.Close()
	})
	return NewResolver("HOST01", "corp.example.com", dir, cache, pool)
}

// --- ParseContext ---

func TestParseContext(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		want     Parsed
	}{
		{"バックスラッシュ", `CORP\alice`, Parsed{Context: "CORP", Name: "alice"}},
		{"UPN", "alice@corp.example.com", Parsed{Context: "corp.example.com", Name: "alice"}},
		{"名前のみ", "alice", Parsed{Context: "HOST01", Name: "alice"}},
		{"空のコンテキスト", `\alice`, Parsed{Context: "HOST01", Name: "alice"}},
		{"末尾の @", "alice@", Parsed{Context: "HOST01", Name: "alice"}},
		{"SID", "s-1-5-21-1-1001", Parsed{Context: "HOST01", SID: "S-1-5-21-1-1001"}},
		{"LocalSystem", "Local System", Parsed{Context: "HOST01", SID: domain.SIDLocalSystem}},
		{"NT AUTHORITY", `NT AUTHORITY\Network Service`, Parsed{Context: "HOST01", SID: domain.SIDNetworkService}},
		{"マシン名付き", `host01\LocalService`, Parsed{Context: "HOST01", SID: domain.SIDLocalService}},
		{"Local", "local", Parsed{Context: "HOST01", SID: domain.SIDLocalService}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContext(tt.identity, "HOST01")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseContext_Invalid(t *testing.T) {
	for _, id := range []string{"", "   ", `CORP\`, "@corp"} {
		if _, err := ParseContext(id, "HOST01"); !errors.Is(err, domain.ErrInvalidIdentity) {
			t.Errorf("%q: want ErrInvalidIdentity, got %v", id, err)
		}
	}
}

// --- DomainsEqual ---

func TestDomainsEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Domain1", "Domain1", true},
		{"Domain1", "domain1", true},
		{"Domain1", "Domain2", false},
		{"", "Domain1", false},
		{"Domain1", "", false},
		{"Domain1", "Domain1.com", true},
		{"domain1.com", "DOMAIN1", true},
		{"Domain1.dom", "Domain1.dom.com", false},
		{"Domain1.dom1.dom2", "Domain1.dom1.dom2.com", false},
		{"Domain", "Domain1.com", false},
	}
	for _, tt := range tests {
		if got := DomainsEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("DomainsEqual(%q, %q): want %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
}

// --- Cache ---

func TestCache_PutGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	c.Put(domain.IdentityInfo{SID: "S-1-5-21-1-1001", Context: "HOST01", Name: "Alice"})

	if _, ok := c.BySID("s-1-5-21-1-1001"); !ok {
		t.Error("want entry by SID")
	}
	info, ok := c.ByName("host01", "alice")
	if !ok {
		t.Fatal("want entry by name")
	}
	if info.SID != "S-1-5-21-1-1001" {
		t.Errorf("want S-1-5-21-1-1001, got %s", info.SID)
	}
	if info.Created.IsZero() {
		t.Error("want created time set")
	}
}

func TestCache_MemberOf(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	if _, found := c.MemberOf("S-1-5-21-1-1002", "S-1-5-21-1-2001"); found {
		t.Fatal("want no cached answer")
	}
	c.SetMemberOf("S-1-5-21-1-1002", "S-1-5-21-1-2001", true)

	member, found := c.MemberOf("S-1-5-21-1-1002", "s-1-5-21-1-2001")
	if !found || !member {
		t.Errorf("want cached membership, got member=%v found=%v", member, found)
	}
}

func TestCache_Expires(t *testing.T) {
	c := NewCache(50 * time.Millisecond)
	defer c.Close()

	c.Put(domain.IdentityInfo{SID: "S-1-5-21-1-1001", Context: "HOST01", Name: "alice"})
	if _, ok := c.BySID("S-1-5-21-1-1001"); !ok {
		t.Fatal("want entry before expiry")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, bySID := c.BySID("S-1-5-21-1-1001")
		_, byName := c.ByName("HOST01", "alice")
		n := c.Count()
		if !bySID && !byName && n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry still cached after TTL: bySID=%v byName=%v count=%d", bySID, byName, n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// --- Resolver ---

func TestResolver_Resolve_ShortDomainName(t *testing.T) {
	dir := newTestDirectory()
	dir.entries = append(dir.entries,
		domain.DirectoryEntry{SID: "S-1-5-21-2-1102", Context: "corp.example.com", Name: "dave", Type: domain.IdentityTypeUser})
	r := newTestResolver(t, dir)

	for _, id := range []string{`CORP\dave`, "dave@corp", `corp.example.com\dave`, "dave@CORP.EXAMPLE.COM"} {
		p, err := ParseContext(id, "HOST01")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		info, err := r.Resolve(context.Background(), p)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		if info.SID != "S-1-5-21-2-1102" {
			t.Errorf("%s: want S-1-5-21-2-1102, got %s", id, info.SID)
		}
	}
}

func TestResolver_Bucket(t *testing.T) {
	r := newTestResolver(t, newTestDirectory())

	got, err := r.Bucket(context.Background(), []string{
		"bob", `HOST01\alice`, "S-1-5-21-1-1001", `CORP\carol`, "dave@corp.example.com", "LocalSystem",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"S-1-5-18", "S-1-5-21-1-1001", "S-1-5-21-1-1002"}
	sids := got.Machines["HOST01"]
	if len(sids) != len(want) {
		t.Fatalf("want %v, got %v", want, sids)
	}
	for i := range want {
		if sids[i] != want[i] {
			t.Errorf("want %v, got %v", want, sids)
			break
		}
	}
	if len(got.Domain) != 2 {
		t.Errorf("want 2 domain identities, got %v", got.Domain)
	}
}

func TestResolver_Bucket_ForeignContext(t *testing.T) {
	r := newTestResolver(t, newTestDirectory())

	_, err := r.Bucket(context.Background(), []string{"alice", `OTHERDOMAIN\eve`})
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Fatalf("want ErrInvalidIdentity, got %v", err)
	}
	if !strings.Contains(err.Error(), `OTHERDOMAIN\eve`) {
		t.Errorf("want offending identity in message, got %v", err)
	}
}

func TestResolver_Bucket_AggregatesFailures(t *testing.T) {
	r := newTestResolver(t, newTestDirectory())

	_, err := r.Bucket(context.Background(), []string{"alice", "nobody", "ghost", "S-1-5-21-1-3001"})
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Fatalf("want ErrInvalidIdentity, got %v", err)
	}
	for _, id := range []string{`HOST01\nobody`, `HOST01\ghost`, "S-1-5-21-1-3001"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("want %s in message, got %v", id, err)
		}
	}
}

func TestResolver_Bucket_NotInDomain(t *testing.T) {
	cache := NewCache(time.Minute)
	defer cache.Close()
	pool := worker.NewPool(1)
	defer pool.Stop()
	r := NewResolver("HOST01", "", newTestDirectory(), cache, pool)

	if _, err := r.Bucket(context.Background(), []string{`CORP\alice`}); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("want ErrInvalidIdentity, got %v", err)
	}
}

// --- Authorizer ---

func TestAuthorizer_Authorized(t *testing.T) {
	dir := newTestDirectory()
	cache := NewCache(time.Minute)
	defer cache.Close()
	a := NewAuthorizer(dir, cache)

	tests := []struct {
		name       string
		caller     string
		identities []string
		want       bool
	}{
		{"直接一致", "S-1-5-21-1-1001", []string{"S-1-5-21-1-1001"}, true},
		{"大文字小文字を区別しない", "s-1-5-21-1-1001", []string{"S-1-5-21-1-1001"}, true},
		{"グループ経由", "S-1-5-21-1-1002", []string{"S-1-5-21-1-2001"}, true},
		{"グループ外", "S-1-5-21-1-1001", []string{"S-1-5-21-1-2001"}, false},
		{"未登録の ID", "S-1-5-21-1-1001", []string{"S-1-5-21-1-9999"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Authorized(context.Background(), tt.caller, tt.identities)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAuthorizer_Authorized_CachesMembership(t *testing.T) {
	dir := newTestDirectory()
	cache := NewCache(time.Minute)
	defer cache.Close()
	a := NewAuthorizer(dir, cache)

	for i := 0; i < 3; i++ {
		if _, err := a.Authorized(context.Background(), "S-1-5-21-1-1002", []string{"S-1-5-21-1-2001"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if dir.memberCalls != 1 {
		t.Errorf("want 1 directory membership query, got %d", dir.memberCalls)
	}
}

func TestAuthorizer_Authorized_Ambiguous(t *testing.T) {
	cache := NewCache(time.Minute)
	defer cache.Close()
	a := NewAuthorizer(newTestDirectory(), cache)

	_, err := a.Authorized(context.Background(), "S-1-5-21-1-1001", []string{"S-1-5-21-1-3001"})
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("want ErrInvalidIdentity, got %v", err)
	}
}
