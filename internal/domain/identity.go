// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"strings"
	"time"
)

// 既知のサービスアカウントの SID。
const (
	SIDLocalSystem    = "S-1-5-18"
	SIDLocalService   = "S-1-5-19"
	SIDNetworkService = "S-1-5-20"
)

// IdentityType は ID の種別を表す。
type IdentityType string

const (
	// IdentityTypeUser はユーザーを表す。
	IdentityTypeUser IdentityType = "user"
	// IdentityTypeGroup はグループを表す。
	IdentityTypeGroup IdentityType = "group"
)

// Principal は解決済みの呼び出し元を表す。
// Context はマシン名またはドメイン名。
type Principal struct {
	SID     string
	Name    string
	Context string
}

// Identity は "context\name" 形式の表記を返す。
func (p Principal) Identity() string {
	if p.Context == "" {
		return p.Name
	}
	return p.Context + `\` + p.Name
}

// IdentityInfo は ID キャッシュのエントリ。
type IdentityInfo struct {
	SID      string
	Name     string
	Context  string
	Type     IdentityType
	MemberOf map[string]bool // グループ SID -> 所属判定結果
	Created  time.Time
}

// DirectoryEntry はディレクトリに登録されたプリンシパルを表す。
type DirectoryEntry struct {
	SID       string
	Context   string
	Name      string
	Type      IdentityType
	CreatedAt time.Time
}

// Recipients は暗号化対象 ID の振り分け結果を表す。
type Recipients struct {
	Machines map[string][]string // ホスト名 -> SID
	Domain   []string            // ドメインサービスで解決する ID
}

// HasDomain はドメイン宛ての ID が含まれるかを返す。
func (r Recipients) HasDomain() bool {
	return len(r.Domain) > 0
}

// EqualSID は SID を大文字小文字を区別せずに比較する。
func EqualSID(a, b string) bool {
	return strings.EqualFold(a, b)
}
