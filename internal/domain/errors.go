package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNullArgument は必須の引数が nil の場合のエラー。
	ErrNullArgument = errors.New("argument cannot be null")

	// ErrEmptyArgument は必須の引数が空の場合のエラー。
	ErrEmptyArgument = errors.New("argument cannot be empty")

	// ErrBadParameter はヘッダーまたはメッセージの構造検証に失敗した場合のエラー。
	// 具体的なフィールドは BadParameterError が保持する。
	ErrBadParameter = errors.New("bad parameter")

	// ErrInvalidFormat はエンベロープまたはヘッダーの形式が不正な場合のエラー。
	ErrInvalidFormat = errors.New("invalid format")

	// ErrEmptyCiphertext はヘッダーの後に暗号文が存在しない場合のエラー。
	ErrEmptyCiphertext = errors.New("no ciphertext present")

	// ErrInvalidIdentity は ID を解決できない、または一意に決まらない場合のエラー。
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrAuthorization は呼び出し元が許可された ID に含まれない場合のエラー。
	ErrAuthorization = errors.New("not authorized")

	// ErrSignatureVerification は再計算した署名が一致しない場合のエラー。
	ErrSignatureVerification = errors.New("signature verification failed")

	// ErrBadEncryptionAlgorithm は暗号アルゴリズムまたはモードを生成できない場合のエラー。
	ErrBadEncryptionAlgorithm = errors.New("bad encryption algorithm")

	// ErrBadSignatureAlgorithm は署名アルゴリズムを生成できない場合のエラー。
	ErrBadSignatureAlgorithm = errors.New("bad signature algorithm")

	// ErrBadSignatureKeyLength は署名鍵の長さがアルゴリズムと一致しない場合のエラー。
	ErrBadSignatureKeyLength = errors.New("bad signature key length")

	// ErrCommunications はドメインサービスとの通信に失敗した場合のエラー。
	ErrCommunications = errors.New("communications failure")

	// ErrUpdatedSettings はドメインサービスが暗号設定の更新を要求した場合の内部シグナル。
	ErrUpdatedSettings = errors.New("crypto settings updated")

	// ErrUnknownMessage は受信したメッセージがどのスキーマにも一致しない場合のエラー。
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNotSupported は未対応の操作を要求された場合のエラー。
	ErrNotSupported = errors.New("not supported")

	// ErrGeneral は想定外の内部エラー。
	ErrGeneral = errors.New("general failure")
)

// BadParameterError は検証に失敗したフィールドと理由を保持する。
type BadParameterError struct {
	Field  string
	Reason string
}

// NewBadParameter は BadParameterError を生成する。
func NewBadParameter(field, reason string) *BadParameterError {
	return &BadParameterError{Field: field, Reason: reason}
}

func (e *BadParameterError) Error() string {
	return fmt.Sprintf("bad parameter %s: %s", e.Field, e.Reason)
}

// Is は errors.Is(err, ErrBadParameter) を満たす。
func (e *BadParameterError) Is(target error) bool {
	return target == ErrBadParameter
}

// UpdatedSettingsError はドメインサービスが指定した暗号設定を運ぶ。
type UpdatedSettingsError struct {
	Settings CryptoSettings
}

func (e *UpdatedSettingsError) Error() string {
	return fmt.Sprintf("domain service requested crypto settings %s", e.Settings)
}

// Is は errors.Is(err, ErrUpdatedSettings) を満たす。
func (e *UpdatedSettingsError) Is(target error) bool {
	return target == ErrUpdatedSettings
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrNullArgument, "NullArgument"},
	{ErrEmptyArgument, "EmptyArgument"},
	{ErrBadParameter, "BadParameter"},
	{ErrInvalidFormat, "InvalidFormat"},
	{ErrEmptyCiphertext, "EmptyCiphertext"},
	{ErrInvalidIdentity, "InvalidIdentity"},
	{ErrAuthorization, "Authorization"},
	{ErrSignatureVerification, "SignatureVerification"},
	{ErrBadEncryptionAlgorithm, "BadEncryptionAlgorithm"},
	{ErrBadSignatureAlgorithm, "BadSignatureAlgorithm"},
	{ErrBadSignatureKeyLength, "BadSignatureKeyLength"},
	{ErrCommunications, "Communications"},
	{ErrUpdatedSettings, "UpdatedSettings"},
	{ErrUnknownMessage, "UnknownMessage"},
	{ErrNotSupported, "NotSupported"},
	{ErrGeneral, "General"},
}

// KindOf はエラーの分類名を返す。分類できない場合は "General"。
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "General"
}

// スキーママイグレーションのエラー。XDP のエラー分類には含まれない。
var (
	ErrInvalidMigrationFile = errors.New("invalid migration file name")
	ErrMigrationFailed      = errors.New("migration failed")
)
