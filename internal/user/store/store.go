package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nao1215/cloudmart/internal/user/account"
	"github.com/nao1215/cloudmart/pkg/event"
	"github.com/nao1215/cloudmart/pkg/migration"
	"github.com/nao1215/cloudmart/pkg/token"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	// DriverSQLite はSQLiteのドライバ名。
	DriverSQLite = "sqlite"
	// DriverPostgres はPostgreSQL (pgx) のドライバ名。
	DriverPostgres = "pgx"
)

const (
	// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
	pgUniqueViolation = "23505"
	// pgInvalidTextRepresentation はUUID列に不正な文字列を渡した場合のエラーコード。
	pgInvalidTextRepresentation = "22P02"
)

// userColumns はusersテーブルから読み出す列。scanAccount と順序を揃える。
const userColumns = `id, email, password_hash, first_name, last_name, phone, role,
	is_active, email_verified, last_login, created_at, updated_at`

// Store は account.Store のSQL実装。
type Store struct {
	db      *sql.DB
	dialect migration.Dialect
}

var _ account.Store = (*Store)(nil)

// Open はデータベースに接続し、マイグレーションを適用したStoreを返す。
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if dialect == migration.SQLite {
		// SQLiteは書き込みを直列化する。:memory: は接続ごとに別DBになる。
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New は既存の接続からStoreを生成する。マイグレーションは行わない。
func New(db *sql.DB, dialect migration.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func dialectFor(driver string) (migration.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return migration.SQLite, nil
	case DriverPostgres:
		return migration.Postgres, nil
	default:
		return "", fmt.Errorf("未対応のドライバです: %q", driver)
	}
}

// Migrate はスキーマのマイグレーションを適用する。
func (s *Store) Migrate(ctx context.Context) error {
	if err := migration.Run(ctx, s.db, s.dialect, migrationsFS, "migrations/"+string(s.dialect)); err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByEmail はメールアドレスでアカウントを取得する。
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	return scanAccount(row)
}

// FindByID はIDでアカウントを取得する。
// UUIDとして解釈できないIDは存在しないものとして account.ErrNotFound を返す。
func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	a, err := scanAccount(row)
	if isInvalidID(err) {
		return nil, account.ErrNotFound
	}
	return a, err
}

// Create はアカウントを作成する。
// メールアドレスが既に存在する場合は account.ErrEmailTaken を返す。
func (s *Store) Create(ctx context.Context, a *account.Account) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role,
			is_active, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Phone, string(a.Role),
		a.IsActive, a.EmailVerified, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrEmailTaken
		}
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q("UPDATE users SET last_login = ? WHERE id = ?"), at, id); err != nil {
		return fmt.Errorf("最終ログイン日時の更新に失敗: %w", err)
	}
	return nil
}

// UpdatePassword はパスワードハッシュを更新する。
func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return s.execOne(ctx, "パスワードの更新",
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, at, id)
}

// UpdateProfile はプロフィールを更新し、更新後のアカウントを返す。
func (s *Store) UpdateProfile(ctx context.Context, id string, p account.ProfileUpdate, at time.Time) (*account.Account, error) {
	err := s.execOne(ctx, "プロフィールの更新", `
		UPDATE users
		SET first_name = COALESCE(?, first_name),
			last_name = COALESCE(?, last_name),
			phone = COALESCE(?, phone),
			updated_at = ?
		WHERE id = ?`,
		nullable(p.FirstName), nullable(p.LastName), nullable(p.Phone), at, id,
	)
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// Deactivate はアカウントを無効化する。
func (s *Store) Deactivate(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "アカウントの無効化",
		"UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?", false, at, id)
}

// List はアカウントを作成日時の降順で取得する。
func (s *Store) List(ctx context.Context, limit, offset int) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	return accounts, nil
}

// Count はアカウントの総数を返す。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗: %w", err)
	}
	return n, nil
}

// SaveRefreshToken はリフレッシュトークンの監査レコードを保存する。
func (s *Store) SaveRefreshToken(ctx context.Context, r account.RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.TokenHash, r.ExpiresAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リフレッシュトークンの保存に失敗: %w", err)
	}
	return nil
}

// AppendEvent は監査イベントを追記する。
func (s *Store) AppendEvent(ctx context.Context, e *event.Event) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO account_events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.AggregateID, string(e.AggregateType), string(e.EventType), string(e.Data), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの保存に失敗: %w", err)
	}
	return nil
}

// ListEvents は指定ユーザーの監査イベントを古い順に返す。
func (s *Store) ListEvents(ctx context.Context, userID string) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		FROM account_events WHERE aggregate_id = ? ORDER BY created_at, id`), userID)
	if err != nil {
		if isInvalidID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*event.Event
	for rows.Next() {
		var (
			e         event.Event
			data      string
			createdAt dbTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		e.Data = []byte(data)
		e.CreatedAt = createdAt.Time
		events = append(events, &e)
	}
	return events, rows.Err()
}

// q はクエリのプレースホルダを方言に合わせて変換する。
func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// execOne は1行だけを更新するクエリを実行する。対象が無い場合は account.ErrNotFound を返す。
func (s *Store) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("%sに失敗: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%sに失敗: %w", op, err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

// nullable は未指定の値をNULLとして渡す。
func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a         account.Account
		role      string
		lastLogin dbTime
		createdAt dbTime
		updatedAt dbTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Phone, &role,
		&a.IsActive, &a.EmailVerified, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("ユーザーの読み取りに失敗: %w", err)
	}

	a.Role = token.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

// isUniqueViolation はドライバ固有のエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// isInvalidID はPostgreSQLがIDをUUIDとして解釈できなかったかどうかを判定する。
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}
