// Package account はユーザーアカウントの認証フローを提供する。
//
// 登録・ログイン・トークン更新・プロフィール操作を Service が実装し、
// 永続化は Store インターフェースに委譲する。
// 外部に返すユーザー情報は常に PublicUser であり、パスワードハッシュを含まない。
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nao1215/cloudmart/pkg/event"
	"github.com/nao1215/cloudmart/pkg/token"
)

var (
	// ErrNotFound は対象のアカウントが存在しないことを表す。
	ErrNotFound = errors.New("account: アカウントが見つかりません")
	// ErrEmailTaken はメールアドレスが既に登録されていることを表す。
	// Store.Create が一意制約違反を検出した場合に返す。
	ErrEmailTaken = errors.New("account: メールアドレスは既に登録されています")
)

// Account は永続化されたユーザーアカウント。
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	Phone         string
	Role          token.Role
	IsActive      bool
	EmailVerified bool
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity はトークンに埋め込む利用者情報を返す。
func (a *Account) Identity() token.Identity {
	return token.Identity{UserID: a.ID, Email: a.Email, Role: a.Role}
}

// Public は外部に公開できる形に変換する。
func (a *Account) Public() PublicUser {
	return PublicUser{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Role:          a.Role,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		LastLogin:     a.LastLogin,
		CreatedAt:     a.CreatedAt,
	}
}

// PublicUser はAPIレスポンスとして返すユーザー情報。
type PublicUser struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Phone         string     `json:"phone,omitempty"`
	Role          token.Role `json:"role"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ProfileUpdate はプロフィール更新の内容。nilのフィールドは変更しない。
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// Fields は変更対象のフィールド名を返す。
func (p ProfileUpdate) Fields() []string {
	var fields []string
	if p.FirstName != nil {
		fields = append(fields, "firstName")
	}
	if p.LastName != nil {
		fields = append(fields, "lastName")
	}
	if p.Phone != nil {
		fields = append(fields, "phone")
	}
	return fields
}

// RefreshTokenRecord は発行したリフレッシュトークンの監査レコード。
// トークンそのものは保存せず、SHA-256ハッシュのみを保持する。
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store はアカウントの永続化を行う。
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate, at time.Time) (*Account, error)
	Deactivate(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*Account, error)
	Count(ctx context.Context) (int, error)
	SaveRefreshToken(ctx context.Context, r RefreshTokenRecord) error
	AppendEvent(ctx context.Context, e *event.Event) error
	ListEvents(ctx context.Context, userID string) ([]*event.Event, error)
}

// NormalizeEmail は比較・保存用にメールアドレスを正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
