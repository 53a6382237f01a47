package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/cloudmart/internal/user/account"
	"github.com/nao1215/cloudmart/pkg/event"
	"github.com/nao1215/cloudmart/pkg/token"
)

// openTestStore はインメモリSQLiteのStoreを生成する。
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var baseTime = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newAccount(id, email string, createdAt time.Time) *account.Account {
	return &account.Account{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		FirstName:    "Hanako",
		LastName:     "Suzuki",
		Role:         token.RoleCustomer,
		IsActive:     true,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func mustCreate(t *testing.T, s *Store, a *account.Account) {
	t.Helper()

	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create()でエラーが発生: %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("未対応のドライバはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
			t.Error("Open() error = nil, want error")
		}
	})

	t.Run("マイグレーションは再実行しても成功すること", func(t *testing.T) {
		t.Parallel()

		s := openTestStore(t)
		if err := s.Migrate(context.Background()); err != nil {
			t.Errorf("Migrate()でエラーが発生: %v", err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping()でエラーが発生: %v", err)
		}
	})
}

func TestCreateAndFind(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, newAccount("u-1", "hanako@example.com", baseTime))

	t.Run("メールアドレスで取得できること", func(t *testing.T) {
		got, err := s.FindByEmail(ctx, "hanako@example.com")
		if err != nil {
			t.Fatalf("FindByEmail()でエラーが発生: %v", err)
		}
		if got.ID != "u-1" || got.FirstName != "Hanako" || got.Role != token.RoleCustomer {
			t.Errorf("account = %+v", got)
		}
		if !got.IsActive || got.EmailVerified {
			t.Errorf("IsActive = %v, EmailVerified = %v", got.IsActive, got.EmailVerified)
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
		}
		if got.LastLogin != nil {
			t.Errorf("LastLogin = %v, want nil", got.LastLogin)
		}
	})

	t.Run("存在しない場合はErrNotFoundになること", func(t *testing.T) {
		if _, err := s.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, account.ErrNotFound) {
			t.Errorf("FindByEmail() err = %v, want ErrNotFound", err)
		}
		if _, err := s.FindByID(ctx, "missing"); !errors.Is(err, account.ErrNotFound) {
			t.Errorf("FindByID() err = %v, want ErrNotFound", err)
		}
	})

	t.Run("メールアドレスの重複はErrEmailTakenになること", func(t *testing.T) {
		err := s.Create(ctx, newAccount("u-2", "hanako@example.com", baseTime))
		if !errors.Is(err, account.ErrEmailTaken) {
			t.Errorf("Create() err = %v, want ErrEmailTaken", err)
		}
	})
}

func TestUpdates(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, newAccount("u-1", "jiro@example.com", baseTime))
	later := baseTime.Add(time.Hour)

	t.Run("最終ログイン日時を更新できること", func(t *testing.T) {
		if err := s.UpdateLastLogin(ctx, "u-1", later); err != nil {
			t.Fatalf("UpdateLastLogin()でエラーが発生: %v", err)
		}
		got, err := s.FindByID(ctx, "u-1")
		if err != nil {
			t.Fatalf("FindByID()でエラーが発生: %v", err)
		}
		if got.LastLogin == nil || !got.LastLogin.Equal(later) {
			t.Errorf("LastLogin = %v, want %v", got.LastLogin, later)
		}
	})

	t.Run("指定したフィールドだけが更新されること", func(t *testing.T) {
		phone := "03-0000-0000"
		got, err := s.UpdateProfile(ctx, "u-1", account.ProfileUpdate{Phone: &phone}, later)
		if err != nil {
			t.Fatalf("UpdateProfile()でエラーが発生: %v", err)
		}
		if got.Phone != phone || got.FirstName != "Hanako" || got.LastName != "Suzuki" {
			t.Errorf("account = %+v", got)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
		}
	})

	t.Run("パスワードハッシュを更新できること", func(t *testing.T) {
		if err := s.UpdatePassword(ctx, "u-1", "$2a$04$new", later); err != nil {
			t.Fatalf("UpdatePassword()でエラーが発生: %v", err)
		}
		got, _ := s.FindByID(ctx, "u-1")
		if got.PasswordHash != "$2a$04$new" {
			t.Errorf("PasswordHash = %q", got.PasswordHash)
		}
	})

	t.Run("無効化できること", func(t *testing.T) {
		if err := s.Deactivate(ctx, "u-1", later); err != nil {
			t.Fatalf("Deactivate()でエラーが発生: %v", err)
		}
		got, _ := s.FindByID(ctx, "u-1")
		if got.IsActive {
			t.Error("IsActive = true, want false")
		}
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		if err := s.Deactivate(ctx, "missing", later); !errors.Is(err, account.ErrNotFound) {
			t.Errorf("Deactivate() err = %v, want ErrNotFound", err)
		}
		if err := s.UpdatePassword(ctx, "missing", "x", later); !errors.Is(err, account.ErrNotFound) {
			t.Errorf("UpdatePassword() err = %v, want ErrNotFound", err)
		}
		name := "x"
		if _, err := s.UpdateProfile(ctx, "missing", account.ProfileUpdate{FirstName: &name}, later); !errors.Is(err, account.ErrNotFound) {
			t.Errorf("UpdateProfile() err = %v, want ErrNotFound", err)
		}
	})
}

func TestListAndCount(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, newAccount("u-1", "first@example.com", baseTime))
	mustCreate(t, s, newAccount("u-2", "second@example.com", baseTime.Add(time.Minute)))
	mustCreate(t, s, newAccount("u-3", "third@example.com", baseTime.Add(2*time.Minute)))

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count()でエラーが発生: %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	got, err := s.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List()でエラーが発生: %v", err)
	}
	if len(got) != 2 || got[0].ID != "u-3" || got[1].ID != "u-2" {
		t.Errorf("List(2, 0) = %v", ids(got))
	}

	got, err = s.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List()でエラーが発生: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u-1" {
		t.Errorf("List(2, 2) = %v", ids(got))
	}
}

func ids(accounts []*account.Account) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ID)
	}
	return out
}

func TestRefreshTokensAndEvents(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, newAccount("u-1", "events@example.com", baseTime))

	err := s.SaveRefreshToken(ctx, account.RefreshTokenRecord{
		ID:        "rt-1",
		UserID:    "u-1",
		TokenHash: account.HashToken("refresh-token"),
		ExpiresAt: baseTime.Add(7 * 24 * time.Hour),
		CreatedAt: baseTime,
	})
	if err != nil {
		t.Fatalf("SaveRefreshToken()でエラーが発生: %v", err)
	}

	var stored string
	if err := s.db.QueryRow("SELECT token_hash FROM refresh_tokens WHERE id = 'rt-1'").Scan(&stored); err != nil {
		t.Fatalf("refresh_tokensの取得に失敗: %v", err)
	}
	if stored == "refresh-token" || stored != account.HashToken("refresh-token") {
		t.Errorf("token_hash = %q", stored)
	}

	for _, typ := range []event.Type{event.TypeUserRegistered, event.TypeUserLoggedIn} {
		ev, err := event.New("u-1", typ, nil)
		if err != nil {
			t.Fatalf("event.New()でエラーが発生: %v", err)
		}
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent()でエラーが発生: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListEvents()でエラーが発生: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].AggregateType != event.AggregateTypeUser || string(events[0].Data) != "{}" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestDBTimeScan(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 4, 1, 9, 30, 15, 500, time.UTC)
	tests := []struct {
		name      string
		src       any
		wantValid bool
		wantErr   bool
	}{
		{name: "NULL", src: nil},
		{name: "time.Time", src: want, wantValid: true},
		{name: "RFC3339", src: want.Format(time.RFC3339Nano), wantValid: true},
		{name: "SQLite既定の書式", src: []byte(want.Format("2006-01-02 15:04:05.999999999-07:00")), wantValid: true},
		{name: "不正な文字列", src: "yesterday", wantErr: true},
		{name: "未対応の型", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got dbTime
			err := got.Scan(tt.src)
			if tt.wantErr {
				if err == nil {
					t.Error("Scan() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Scan()でエラーが発生: %v", err)
			}
			if got.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if tt.wantValid && !got.Time.Equal(want) {
				t.Errorf("Time = %v, want %v", got.Time, want)
			}
		})
	}
}
