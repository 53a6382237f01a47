package token

import "github.com/golang-jwt/jwt/v5"

// Role はアクセストークンに含まれるユーザーのロール。
type Role string

const (
	// RoleCustomer は一般の購入者。
	RoleCustomer Role = "customer"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// Valid は既知のロールかどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin:
		return true
	default:
		return false
	}
}

// TypeRefresh はリフレッシュトークンの type クレームの値。
const TypeRefresh = "refresh"

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// アクセストークンは UserID・Email・Role を持ち、
// リフレッシュトークンは UserID と Type="refresh" のみを持つ。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。Subject と同じ値。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Role はユーザーのロール。
	Role Role `json:"role,omitempty"`
	// Type はトークンの種別。リフレッシュトークンのみ "refresh" を持つ。
	Type string `json:"type,omitempty"`
}

// IsRefresh はリフレッシュトークンのクレームかどうかを返す。
func (c *Claims) IsRefresh() bool {
	return c.Type == TypeRefresh
}

// Identity はアクセストークンの発行対象となるユーザーの識別情報。
type Identity struct {
	// UserID はユーザーID。
	UserID string
	// Email はメールアドレス。
	Email string
	// Role はロール。
	Role Role
}
