package format

import (
	"context"
	"strings"
)

// Protector は鍵の保護 (wrap/unwrap) を提供する。scope ごとに独立した鍵で保護される。
type Protector interface {
	Protect(ctx context.Context, plaintext []byte, scope string) ([]byte, error)
	Unprotect(ctx context.Context, ciphertext []byte, scope string) ([]byte, error)
}

// Authorizer は呼び出し元が許可リストに含まれるかを判定する。
type Authorizer interface {
	Authorized(ctx context.Context, callerSID string, identities []string) (bool, error)
}

// Runner は呼び出し元とは別のワーカーで、期限付きで処理を実行する。
type Runner interface {
	RunAsService(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// MachineScope はマシンヘッダーの鍵を保護するスコープ名を返す。
// ホスト名の大文字小文字は区別しない。
func MachineScope(hostname string) string {
	return "machine:" + strings.ToUpper(hostname)
}

// DomainScope はドメインヘッダーの鍵を保護するスコープ名を返す。
func DomainScope(server string) string {
	return "domain:" + strings.ToUpper(server)
}
