package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"xdp-service/internal/domain"
)

// DefaultTokenTTL はベアラートークンの有効期間。
const DefaultTokenTTL = time.Minute

// CallerClaims はベアラートークンが運ぶ呼び出し元の情報。
type CallerClaims struct {
	Name    string `json:"name"`
	Context string `json:"ctx"`
	jwt.RegisteredClaims
}

// TokenSigner は呼び出し元を証明するトークンを発行・検証する。
type TokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenSigner は新しい TokenSigner を生成する。issuer は発行元のマシン名。
func NewTokenSigner(secret []byte, issuer string) *TokenSigner {
	return &TokenSigner{secret: secret, issuer: issuer, ttl: DefaultTokenTTL}
}

// Issue は caller のトークンを発行する。
func (s *TokenSigner) Issue(caller domain.Principal) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	now := time.Now()
	claims := CallerClaims{
		Name:    caller.Name,
		Context: caller.Context,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   caller.SID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証し、呼び出し元を返す。
func (s *TokenSigner) Parse(token string) (domain.Principal, error) {
	claims := &CallerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: invalid token: %v", domain.ErrAuthorization, err)
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: token has no subject", domain.ErrAuthorization)
	}
	return domain.Principal{SID: claims.Subject, Name: claims.Name, Context: claims.Context}, nil
}

type callerKey struct{}

// WithCaller は呼び出し元をコンテキストに格納する。
func WithCaller(ctx context.Context, caller domain.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom はコンテキストから呼び出し元を取り出す。
func CallerFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(callerKey{}).(domain.Principal)
	return p, ok
}
