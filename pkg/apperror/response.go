package apperror

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// response はエラーレスポンスのJSON構造。
type response struct {
	Error   Code         `json:"error"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// Body はエラーをレスポンスボディに変換する。
func Body(e *Error) any {
	return response{Error: e.Code, Message: e.Message, Details: e.Details}
}

// Respond はerrをJSONエラーレスポンスとして書き込み、以降のハンドラを中断する。
// 内部エラーの原因はリクエストのロガーにのみ出力する。
func Respond(c *gin.Context, err error) {
	appErr := As(err)
	if appErr.Code == CodeInternal {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(appErr.Cause).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("内部エラー")
	}
	c.AbortWithStatusJSON(appErr.Status, Body(appErr))
}
