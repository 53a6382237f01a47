package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/cloudmart/pkg/apperror"
	"github.com/nao1215/cloudmart/pkg/event"
	"github.com/nao1215/cloudmart/pkg/password"
	"github.com/nao1215/cloudmart/pkg/token"
	"github.com/rs/zerolog"
)

const (
	// maxOffset はOFFSETの上限。これを超えるページは常に空になる。
	maxOffset = math.MaxInt32

	// DefaultPageSize は一覧取得のデフォルト件数。
	DefaultPageSize = 20
	// MaxPageSize は一覧取得の最大件数。
	MaxPageSize = 100
)

// RegisterInput はアカウント登録の入力。
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// AuthResult は登録・ログインの結果。
type AuthResult struct {
	User         PublicUser
	AccessToken  string
	RefreshToken string
}

// Pagination は一覧取得のページ情報。
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListResult は一覧取得の結果。
type ListResult struct {
	Users      []PublicUser `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

// Service はアカウントの認証フローを実行する。
type Service struct {
	store  Store
	hasher *password.Hasher
	issuer *token.Issuer
	now    func() time.Time
}

// NewService は新しいServiceを生成する。
func NewService(store Store, hasher *password.Hasher, issuer *token.Issuer) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register は新しいアカウントを作成し、トークンペアを発行する。
// 同じメールアドレスが既に存在する場合は Conflict を返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := NormalizeEmail(in.Email)

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperror.Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, apperror.Validation(apperror.FieldError{Field: "password", Message: "パスワードは72バイト以下である必要があります"})
		}
		return nil, apperror.Internal(err)
	}

	now := s.now()
	a := &Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Role:         token.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		// 存在確認と作成の間に同じメールアドレスで登録された場合
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperror.Conflict()
		}
		return nil, apperror.Internal(err)
	}

	res, err := s.authenticate(ctx, a)
	if err != nil {
		return nil, err
	}
	s.record(ctx, a.ID, event.TypeUserRegistered, event.UserRegisteredData{Email: a.Email, Role: string(a.Role)})
	return res, nil
}

// Login はメールアドレスとパスワードで認証し、トークンペアを発行する。
// 存在しないメールアドレスと誤ったパスワードは区別せず InvalidCredentials を返す。
func (s *Service) Login(ctx context.Context, email, plain, clientIP string) (*AuthResult, error) {
	a, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Decoy(plain)
			return nil, apperror.InvalidCredentials()
		}
		return nil, apperror.Internal(err)
	}

	if !a.IsActive {
		return nil, apperror.AccountDeactivated()
	}
	if !s.hasher.Verify(plain, a.PasswordHash) {
		return nil, apperror.InvalidCredentials()
	}

	now := s.now()
	if err := s.store.UpdateLastLogin(ctx, a.ID, now); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", a.ID).Msg("最終ログイン日時の更新に失敗")
	} else {
		a.LastLogin = &now
	}

	res, err := s.authenticate(ctx, a)
	if err != nil {
		return nil, err
	}
	s.record(ctx, a.ID, event.TypeUserLoggedIn, event.UserLoggedInData{ClientIP: clientIP})
	return res, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンを発行する。
// リフレッシュトークン自体は再発行しない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", apperror.InvalidToken()
	}

	a, err := s.find(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if !a.IsActive {
		return "", apperror.AccountDeactivated()
	}

	access, err := s.issuer.IssueAccess(a.Identity())
	if err != nil {
		return "", apperror.Internal(err)
	}
	return access, nil
}

// Me は認証済みユーザー自身の情報を返す。
func (s *Service) Me(ctx context.Context, userID string) (*PublicUser, error) {
	a, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := a.Public()
	return &u, nil
}

// Events は指定ユーザーの監査イベントを古い順に返す。
// IDはUUIDである必要があり、それ以外は NotFound を返す。
func (s *Service) Events(ctx context.Context, userID string) ([]*event.Event, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperror.NotFound("ユーザー")
	}
	if _, err := s.find(ctx, userID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, userID)
	if err != nil {
		return nil, s.storeError(err)
	}
	if events == nil {
		events = []*event.Event{}
	}
	return events, nil
}

// UpdateProfile は氏名と電話番号を更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (*PublicUser, error) {
	a, err := s.store.UpdateProfile(ctx, userID, p, s.now())
	if err != nil {
		return nil, s.storeError(err)
	}
	s.record(ctx, userID, event.TypeProfileUpdated, event.ProfileUpdatedData{Fields: p.Fields()})
	u := a.Public()
	return &u, nil
}

// ChangePassword は現在のパスワードを確認した上でパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	a, err := s.find(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, a.PasswordHash) {
		return apperror.InvalidCredentials()
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return apperror.Validation(apperror.FieldError{Field: "newPassword", Message: "パスワードは72バイト以下である必要があります"})
		}
		return apperror.Internal(err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return s.storeError(err)
	}
	s.record(ctx, userID, event.TypePasswordChanged, event.PasswordChangedData{})
	return nil
}

// Deactivate はアカウントを無効化する。データは削除しない。
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if err := s.store.Deactivate(ctx, userID, s.now()); err != nil {
		return s.storeError(err)
	}
	s.record(ctx, userID, event.TypeAccountDeactivated, event.AccountDeactivatedData{})
	return nil
}

// List はアカウントを作成日時の降順で返す。
// pageは1始まり。範囲外の値はデフォルト値に補正する。
func (s *Service) List(ctx context.Context, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var accounts []*Account
	if page-1 <= maxOffset/limit {
		var err error
		accounts, err = s.store.List(ctx, limit, (page-1)*limit)
		if err != nil {
			return nil, apperror.Internal(err)
		}
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	users := make([]PublicUser, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, a.Public())
	}
	return &ListResult{
		Users: users,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// authenticate はトークンペアを発行し、リフレッシュトークンの監査レコードを保存する。
func (s *Service) authenticate(ctx context.Context, a *Account) (*AuthResult, error) {
	access, err := s.issuer.IssueAccess(a.Identity())
	if err != nil {
		return nil, apperror.Internal(err)
	}
	refresh, expiresAt, err := s.issuer.IssueRefresh(a.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	rec := RefreshTokenRecord{
		ID:        uuid.New().String(),
		UserID:    a.ID,
		TokenHash: HashToken(refresh),
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveRefreshToken(ctx, rec); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", a.ID).Msg("リフレッシュトークンの記録に失敗")
	}

	return &AuthResult{User: a.Public(), AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) find(ctx context.Context, userID string) (*Account, error) {
	a, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, s.storeError(err)
	}
	return a, nil
}

func (s *Service) storeError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperror.NotFound("ユーザー")
	}
	return apperror.Internal(err)
}

// record は監査イベントを記録する。失敗しても操作は成功として扱う。
func (s *Service) record(ctx context.Context, userID string, t event.Type, data any) {
	logger := zerolog.Ctx(ctx)
	ev, err := event.New(userID, t, data)
	if err != nil {
		logger.Warn().Err(err).Str("event_type", string(t)).Msg("監査イベントの生成に失敗")
		return
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("event_type", string(t)).Msg("監査イベントの記録に失敗")
	}
}

// HashToken はトークンの監査用ハッシュ (SHA-256, 16進) を返す。
func HashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
