package protocol

import (
	"errors"
	"fmt"

	"xdp-service/internal/domain"
	v1 "xdp-service/internal/format/v1"
)

// GeneralMessage は想定外のエラーで外部に返す唯一のメッセージ。
const GeneralMessage = "An unknown error occurred"

// ToException はエラーを応答メッセージに変換する。
// 分類できないエラーの詳細は外部に出さない。
func ToException(err error) *ExceptionResponse {
	msg := err.Error()

	var bp *domain.BadParameterError
	var updated *domain.UpdatedSettingsError
	switch {
	case errors.As(err, &updated):
		s := updated.Settings
		return &ExceptionResponse{UpdateCommonHeader: &UpdateCommonHeaderException{
			Common: &v1.CommonHeader{
				EncryptionAlgorithm: s.EncryptionAlgorithm,
				EncryptionMode:      s.EncryptionMode,
				SignatureAlgorithm:  s.SignatureAlgorithm,
			},
		}}
	case errors.As(err, &bp):
		return &ExceptionResponse{BadParameter: &BadParameterException{Parameter: bp.Field, Reason: bp.Reason}}
	case errors.Is(err, domain.ErrSignatureVerification):
		return &ExceptionResponse{BadSignature: &msg}
	case errors.Is(err, domain.ErrAuthorization):
		return &ExceptionResponse{NotAuthorized: &msg}
	case errors.Is(err, domain.ErrInvalidIdentity):
		return &ExceptionResponse{UnknownIdentity: &msg}
	default:
		general := GeneralMessage
		return &ExceptionResponse{General: &general}
	}
}

// Err はエラー応答を型付きのエラーに変換する。
func (e *ExceptionResponse) Err() error {
	switch {
	case e.BadParameter != nil:
		return domain.NewBadParameter(e.BadParameter.Parameter, e.BadParameter.Reason)
	case e.BadSignature != nil:
		return fmt.Errorf("%w: %s", domain.ErrSignatureVerification, *e.BadSignature)
	case e.NotAuthorized != nil:
		return fmt.Errorf("%w: %s", domain.ErrAuthorization, *e.NotAuthorized)
	case e.UnknownIdentity != nil:
		return fmt.Errorf("%w: %s", domain.ErrInvalidIdentity, *e.UnknownIdentity)
	case e.UpdateCommonHeader != nil:
		if e.UpdateCommonHeader.Common == nil {
			return fmt.Errorf("%w: update common header response carried no header", domain.ErrGeneral)
		}
		return &domain.UpdatedSettingsError{Settings: e.UpdateCommonHeader.Common.Settings()}
	case e.General != nil:
		return fmt.Errorf("%w: %s", domain.ErrGeneral, *e.General)
	default:
		return fmt.Errorf("%w: the domain service returned an unknown exception", domain.ErrGeneral)
	}
}
