package v1

import "xdp-service/internal/domain"

// AuthorizedIdentities は復号を許可された ID (SID または名前) の一覧。
type AuthorizedIdentities struct {
	Identity []string `xml:"Identity"`
}

// NewAuthorizedIdentities は ID 一覧から AuthorizedIdentities を生成する。
func NewAuthorizedIdentities(ids []string) *AuthorizedIdentities {
	return &AuthorizedIdentities{Identity: append([]string(nil), ids...)}
}

// List は ID 一覧を返す。nil でも呼び出せる。
func (a *AuthorizedIdentities) List() []string {
	if a == nil {
		return nil
	}
	return a.Identity
}

// Validate は一覧が空でないことを検証する。field はエラーに含めるフィールド名。
func (a *AuthorizedIdentities) Validate(field string) error {
	if a == nil || len(a.Identity) == 0 {
		return domain.NewBadParameter(field, "Value was null or empty")
	}
	for _, id := range a.Identity {
		if id == "" {
			return domain.NewBadParameter(field+".Identity", "Value was null or empty")
		}
	}
	return nil
}
