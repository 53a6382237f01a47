package user

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/cloudmart/pkg/apperror"
)

// newValidator はJSONのフィールド名でエラーを報告するバリデータを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizer は検証前に入力を整形するリクエスト。
type normalizer interface {
	normalize()
}

// bind はリクエストボディをreqにデコードして検証する。
// 失敗した場合は VALIDATION_FAILED のエラーを返す。
func (s *Server) bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperror.Validation(apperror.FieldError{Field: "body", Message: "JSONの形式が不正です"})
	}
	if n, ok := req.(normalizer); ok {
		n.normalize()
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperror.Validation(fieldErrors(verrs)...)
		}
		return apperror.Internal(err)
	}
	return nil
}

func fieldErrors(verrs validator.ValidationErrors) []apperror.FieldError {
	details := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, apperror.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return details
}

// message は検証タグごとの利用者向けメッセージを返す。
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "email":
		return "有効なメールアドレスを入力してください"
	case "min":
		return fmt.Sprintf("%s文字以上で入力してください", fe.Param())
	case "max":
		return fmt.Sprintf("%s文字以下で入力してください", fe.Param())
	default:
		return "値が不正です"
	}
}
