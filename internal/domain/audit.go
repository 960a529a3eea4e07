package domain

import "time"

// KeyReleaseResult は鍵の払い出し判定の結果を表す。
type KeyReleaseResult string

const (
	KeyReleaseGranted KeyReleaseResult = "granted"
	KeyReleaseDenied  KeyReleaseResult = "denied"
	KeyReleaseFailed  KeyReleaseResult = "failed"
)

// KeyReleaseRecord はドメインサービスの監査レコード。
type KeyReleaseRecord struct {
	ID           string
	Operation    string
	CallerSID    string
	DomainServer string
	Result       KeyReleaseResult
	Reason       string
	CreatedAt    time.Time
}
