// Package identity は ID の解決、キャッシュ、認可を提供する。
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"xdp-service/internal/domain"
)

var sidPattern = regexp.MustCompile(`(?i)^S-1-\d+(-\d+)*$`)

var wellKnownAccounts = map[string]string{
	"localsystem":    domain.SIDLocalSystem,
	"system":         domain.SIDLocalSystem,
	"networkservice": domain.SIDNetworkService,
	"network":        domain.SIDNetworkService,
	"localservice":   domain.SIDLocalService,
	"local":          domain.SIDLocalService,
}

// Parsed は解析済みの ID 表記。
// SID 表記または既知のサービスアカウントの場合は SID が設定される。
type Parsed struct {
	Context string
	Name    string
	SID     string
}

// Identity は正規化された表記を返す。SID の場合は SID そのもの。
func (p Parsed) Identity() string {
	if p.SID != "" {
		return p.SID
	}
	return p.Context + `\` + p.Name
}

// IsSID は s が SID 表記かを返す。
func IsSID(s string) bool {
	return sidPattern.MatchString(s)
}

// ParseContext は ID 表記をコンテキストと名前に分解する。
// コンテキストが省略された場合は machine とみなす。
func ParseContext(identity, machine string) (Parsed, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Parsed{}, fmt.Errorf("%w: identity was empty", domain.ErrInvalidIdentity)
	}

	if IsSID(identity) {
		return Parsed{Context: machine, SID: strings.ToUpper(identity)}, nil
	}
	if sid, ok := wellKnownSID(identity, machine); ok {
		return Parsed{Context: machine, SID: sid}, nil
	}

	var ctx, name string
	switch {
	case strings.Contains(identity, `\`):
		i := strings.Index(identity, `\`)
		ctx, name = identity[:i], identity[i+1:]
	case strings.Contains(identity, "@"):
		i := strings.Index(identity, "@")
		name, ctx = identity[:i], identity[i+1:]
	default:
		name = identity
	}
	if name == "" {
		return Parsed{}, fmt.Errorf("%w: no user name in '%s'", domain.ErrInvalidIdentity, identity)
	}
	if ctx == "" {
		ctx = machine
	}
	return Parsed{Context: ctx, Name: name}, nil
}

func wellKnownSID(identity, machine string) (string, bool) {
	bare := strings.ToLower(strings.ReplaceAll(identity, " ", ""))
	for _, prefix := range []string{`ntauthority\`, strings.ToLower(machine) + `\`} {
		if strings.HasPrefix(bare, prefix) {
			bare = strings.TrimPrefix(bare, prefix)
			break
		}
	}
	sid, ok := wellKnownAccounts[bare]
	return sid, ok
}

// IsWellKnownSID は sid が既知のサービスアカウントかを返す。
func IsWellKnownSID(sid string) bool {
	for _, s := range wellKnownAccounts {
		if domain.EqualSID(s, sid) {
			return true
		}
	}
	return false
}

// DomainsEqual は短いドメイン名と FQDN を同一視して比較する。
// "corp.local" と "corp.local.net" のように短い方に '.' を含む場合は一致しない。
func DomainsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) == len(b) {
		return strings.EqualFold(a, b)
	}
	fqdn, short := a, b
	if len(a) < len(b) {
		fqdn, short = b, a
	}
	if strings.Contains(short, ".") {
		return false
	}
	return len(fqdn) > len(short) && strings.EqualFold(fqdn[:len(short)+1], short+".")
}
