// Package token はアクセストークンとリフレッシュトークンの発行・検証を提供する。
//
// トークンはHS256で署名されたJWTであり、サーバー側の状態を持たない。
// 署名鍵と有効期限は起動時に一度だけ読み込まれ、以後変更されない。
// Issuer だけが署名でき、Verifier は検証のみを行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTTL はアクセストークンのデフォルトの有効期間。
	DefaultAccessTTL = 24 * time.Hour
	// DefaultRefreshTTL はリフレッシュトークンのデフォルトの有効期間。
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// DefaultIssuer は iss クレームのデフォルト値。
	DefaultIssuer = "cloudmart-user-service"
)

// ErrInvalidToken は署名・有効期限・クレーム形状のいずれかの検証に失敗したことを表す。
var ErrInvalidToken = errors.New("token: トークンが無効です")

// signingMethod は署名アルゴリズム。検証時もこれ以外は受け付けない。
var signingMethod = jwt.SigningMethodHS256

// Config はトークンの署名と有効期限の設定。
type Config struct {
	// Secret はHMAC署名鍵。必須。
	Secret []byte
	// AccessTTL はアクセストークンの有効期間。
	AccessTTL time.Duration
	// RefreshTTL はリフレッシュトークンの有効期間。
	RefreshTTL time.Duration
	// Issuer は iss クレームの値。
	Issuer string
}

func (c *Config) applyDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
}

func (c *Config) validate() error {
	if len(c.Secret) == 0 {
		return errors.New("token: 署名鍵が設定されていません")
	}
	if c.AccessTTL < 0 || c.RefreshTTL < 0 {
		return errors.New("token: 有効期間に負の値は指定できません")
	}
	return nil
}

// Option はVerifierとIssuerの生成オプション。
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Verifier はトークンの署名と有効期限を検証する。I/Oを伴わない。
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Verifier{secret: cfg.Secret, issuer: cfg.Issuer, now: o.now}, nil
}

// Verify は署名・有効期限・発行者を検証し、クレームを返す。
// 失敗した場合は常に ErrInvalidToken をラップしたエラーを返す。
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess はアクセストークンとして検証する。
// 署名が正しくても、リフレッシュトークンや必要なクレームを欠くトークンは拒否する。
func (v *Verifier) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != "" || claims.UserID == "" || claims.Email == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: アクセストークンのクレームではありません", ErrInvalidToken)
	}
	if claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subとuserIdが一致しません", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefresh はリフレッシュトークンとして検証する。
func (v *Verifier) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefresh() || claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: リフレッシュトークンのクレームではありません", ErrInvalidToken)
	}
	return claims, nil
}

// Issuer はトークンを発行する。署名鍵と有効期限を唯一保持する。
type Issuer struct {
	*Verifier
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer は新しいIssuerを生成する。
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	cfg.applyDefaults()
	v, err := NewVerifier(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Issuer{Verifier: v, accessTTL: cfg.AccessTTL, refreshTTL: cfg.RefreshTTL}, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess はアクセストークンを発行する。
func (i *Issuer) IssueAccess(id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("token: ユーザーIDが空です")
	}
	claims := &Claims{
		RegisteredClaims: i.registered(id.UserID, i.accessTTL),
		UserID:           id.UserID,
		Email:            id.Email,
		Role:             id.Role,
	}
	return i.sign(claims)
}

// IssueRefresh はリフレッシュトークンを発行し、その有効期限とともに返す。
func (i *Issuer) IssueRefresh(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("token: ユーザーIDが空です")
	}
	claims := &Claims{
		RegisteredClaims: i.registered(userID, i.refreshTTL),
		UserID:           userID,
		Type:             TypeRefresh,
	}
	signed, err := i.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: JWTの署名に失敗: %w", err)
	}
	return signed, nil
}
