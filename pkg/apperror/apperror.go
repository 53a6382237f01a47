// Package apperror はサービス共通のエラー分類と、HTTPレスポンスへの変換を提供する。
//
// ハンドラやミドルウェアは *Error を返し、境界で Respond を呼び出して
// 安定したエラーコードと利用者向けメッセージに変換する。内部エラーの詳細
// （データベースドライバのエラー等）はレスポンスに含めない。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code は機械可読なエラーコード。
type Code string

const (
	// CodeAuthenticationRequired はトークンが無い、または形式が不正であることを表す。
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	// CodeInvalidToken は署名・有効期限・クレーム形状の検証に失敗したことを表す。
	CodeInvalidToken Code = "INVALID_TOKEN"
	// CodeForbidden はロールによる認可に失敗したことを表す。
	CodeForbidden Code = "FORBIDDEN"
	// CodeConflict は登録済みのメールアドレスでの登録を表す。
	CodeConflict Code = "CONFLICT"
	// CodeInvalidCredentials はメールアドレスまたはパスワードの誤りを表す。
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	// CodeAccountDeactivated は無効化されたアカウントを表す。
	CodeAccountDeactivated Code = "ACCOUNT_DEACTIVATED"
	// CodeNotFound はリソースが存在しないことを表す。
	CodeNotFound Code = "NOT_FOUND"
	// CodeValidation はリクエストの入力検証エラーを表す。
	CodeValidation Code = "VALIDATION_FAILED"
	// CodeRateLimited はレート制限の超過を表す。
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeServiceUnavailable は上流サービスが利用できないことを表す。
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	// CodeInternal は分類外の内部エラーを表す。
	CodeInternal Code = "INTERNAL"
)

// FieldError は入力検証エラーの1項目。
type FieldError struct {
	// Field はエラーとなったフィールド名。
	Field string `json:"field"`
	// Message はフィールドごとのエラーメッセージ。
	Message string `json:"message"`
}

// Error はアプリケーション共通のエラー型。
type Error struct {
	// Code は機械可読なエラーコード。
	Code Code
	// Message は利用者に返してよいメッセージ。
	Message string
	// Status はHTTPステータスコード。
	Status int
	// Details は入力検証エラーの詳細。
	Details []FieldError
	// Cause は原因となった内部エラー。レスポンスには含めない。
	Cause error
}

// Error はエラーの文字列表現を返す。
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error { return e.Cause }

// New は新しい Error を生成する。
func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// AuthenticationRequired は認証情報が無い場合のエラーを返す。
func AuthenticationRequired() *Error {
	return New(CodeAuthenticationRequired, http.StatusUnauthorized, "有効なBearerトークンを指定してください")
}

// InvalidToken はトークンの検証に失敗した場合のエラーを返す。
func InvalidToken() *Error {
	return New(CodeInvalidToken, http.StatusUnauthorized, "トークンが無効か有効期限切れです")
}

// Forbidden はロールによる認可に失敗した場合のエラーを返す。
func Forbidden() *Error {
	return New(CodeForbidden, http.StatusForbidden, "このリソースへのアクセス権限がありません")
}

// Conflict は登録済みメールアドレスでの登録エラーを返す。
func Conflict() *Error {
	return New(CodeConflict, http.StatusConflict, "このメールアドレスは既に登録されています")
}

// InvalidCredentials は認証情報の誤りを返す。
// メールアドレスが存在しない場合とパスワードが誤っている場合で同一の内容を返す。
func InvalidCredentials() *Error {
	return New(CodeInvalidCredentials, http.StatusUnauthorized, "メールアドレスまたはパスワードが正しくありません")
}

// AccountDeactivated は無効化されたアカウントのエラーを返す。
func AccountDeactivated() *Error {
	return New(CodeAccountDeactivated, http.StatusForbidden, "このアカウントは無効化されています")
}

// NotFound はリソースが見つからない場合のエラーを返す。
func NotFound(resource string) *Error {
	return New(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%sが見つかりません", resource))
}

// Validation は入力検証エラーを返す。
func Validation(details ...FieldError) *Error {
	e := New(CodeValidation, http.StatusBadRequest, "入力内容に誤りがあります")
	e.Details = details
	return e
}

// RateLimited はレート制限超過のエラーを返す。
func RateLimited() *Error {
	return New(CodeRateLimited, http.StatusTooManyRequests, "リクエスト数の上限を超えました。しばらく待ってから再試行してください")
}

// ServiceUnavailable は上流サービスが利用できない場合のエラーを返す。
func ServiceUnavailable(service string) *Error {
	return New(CodeServiceUnavailable, http.StatusServiceUnavailable, fmt.Sprintf("%sが利用できません", service))
}

// Internal は内部エラーを返す。causeはログにのみ出力される。
func Internal(cause error) *Error {
	e := New(CodeInternal, http.StatusInternalServerError, "予期しないエラーが発生しました")
	e.Cause = cause
	return e
}

// As はerrから *Error を取り出す。*Error でない場合は Internal に包んで返す。
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// HasCode はerrが指定のコードを持つ *Error かどうかを返す。
func HasCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
