package identity

import (
	"strings"
	"sync"
	"time"

	"github.com/Velocidex/ttlcache/v2"

	"xdp-service/internal/domain"
)

const (
	// DefaultCacheTTL はキャッシュエントリの有効期間。
	DefaultCacheTTL  = time.Minute
	defaultCacheSize = 10000
)

// Cache は解決済み ID のキャッシュ。期限切れのエントリはバックグラウンドで削除される。
type Cache struct {
	lru *ttlcache.Cache
}

type cachedIdentity struct {
	mu   sync.Mutex
	info domain.IdentityInfo
}

// NewCache は ttl を有効期間とする Cache を生成する。
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{lru: ttlcache.NewCache()}
	c.lru.SetCacheSizeLimit(defaultCacheSize)
	_ = c.lru.SetTTL(ttl)
	c.lru.SkipTTLExtensionOnHit(true)
	return c
}

func sidKey(sid string) string {
	return "sid:" + strings.ToLower(sid)
}

func nameKey(ctx, name string) string {
	return "name:" + strings.ToLower(ctx+`\`+name)
}

func (c *Cache) get(key string) (*cachedIdentity, bool) {
	v, err := c.lru.Get(key)
	if err != nil {
		return nil, false
	}
	ci, ok := v.(*cachedIdentity)
	return ci, ok
}

// BySID は SID でエントリを検索する。
func (c *Cache) BySID(sid string) (domain.IdentityInfo, bool) {
	ci, ok := c.get(sidKey(sid))
	if !ok {
		return domain.IdentityInfo{}, false
	}
	return ci.snapshot(), true
}

// ByName は コンテキストと名前でエントリを検索する。
func (c *Cache) ByName(ctx, name string) (domain.IdentityInfo, bool) {
	ci, ok := c.get(nameKey(ctx, name))
	if !ok {
		return domain.IdentityInfo{}, false
	}
	return ci.snapshot(), true
}

// Put はエントリを SID と名前の両方のキーで登録する。
func (c *Cache) Put(info domain.IdentityInfo) {
	if info.Created.IsZero() {
		info.Created = time.Now()
	}
	if info.MemberOf == nil {
		info.MemberOf = make(map[string]bool)
	}
	ci := &cachedIdentity{info: info}
	_ = c.lru.Set(sidKey(info.SID), ci)
	if info.Name != "" {
		_ = c.lru.Set(nameKey(info.Context, info.Name), ci)
	}
}

// MemberOf はキャッシュ済みのグループ所属判定を返す。
func (c *Cache) MemberOf(memberSID, groupSID string) (member, found bool) {
	ci, ok := c.get(sidKey(memberSID))
	if !ok {
		return false, false
	}
	ci.mu.Lock()
	defer ci.mu.Unlock()
	member, found = ci.info.MemberOf[strings.ToLower(groupSID)]
	return member, found
}

// SetMemberOf はグループ所属判定を記録する。エントリがなければ作成する。
func (c *Cache) SetMemberOf(memberSID, groupSID string, member bool) {
	ci, ok := c.get(sidKey(memberSID))
	if !ok {
		c.Put(domain.IdentityInfo{SID: memberSID})
		if ci, ok = c.get(sidKey(memberSID)); !ok {
			return
		}
	}
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.info.MemberOf[strings.ToLower(groupSID)] = member
}

// Count はキャッシュのエントリ数を返す。
func (c *Cache) Count() int {
	return c.lru.Count()
}

// Close はバックグラウンドの削除処理を停止する。
func (c *Cache) Close() error {
	return c.lru.Close()
}

func (ci *cachedIdentity) snapshot() domain.IdentityInfo {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	out := ci.info
	out.MemberOf = make(map[string]bool, len(ci.info.MemberOf))
	for k, v := range ci.info.MemberOf {
		out.MemberOf[k] = v
	}
	return out
}
