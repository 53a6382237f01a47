package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// baseTime はテストで使用する固定時刻。秒未満を持たない。
var baseTime = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// fixedClock は可変な現在時刻を返すテスト用の時計。
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// newTestIssuer はテスト用のIssuerと時計を生成する。
func newTestIssuer(t *testing.T) (*Issuer, *fixedClock) {
	t.Helper()

	clock := &fixedClock{now: baseTime}
	iss, err := NewIssuer(Config{Secret: []byte(testSecret)}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer()でエラーが発生: %v", err)
	}
	return iss, clock
}

var testIdentity = Identity{UserID: "user-123", Email: "test@example.com", Role: RoleCustomer}

// TestNewIssuer はNewIssuer関数を検証する。
func TestNewIssuer(t *testing.T) {
	t.Parallel()

	t.Run("署名鍵が空の場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := NewIssuer(Config{}); err == nil {
			t.Fatal("署名鍵が空の場合はエラーを返すべき")
		}
	})

	t.Run("有効期間のデフォルト値が設定されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		if iss.AccessTTL() != 24*time.Hour {
			t.Errorf("AccessTTL() = %v, want %v", iss.AccessTTL(), 24*time.Hour)
		}
		if iss.RefreshTTL() != 7*24*time.Hour {
			t.Errorf("RefreshTTL() = %v, want %v", iss.RefreshTTL(), 7*24*time.Hour)
		}
	})
}

// TestIssueAccess はアクセストークンの発行と検証を検証する。
func TestIssueAccess(t *testing.T) {
	t.Parallel()

	t.Run("発行したクレームが検証後に復元できること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		tokenStr, err := iss.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}

		claims, err := iss.VerifyAccess(tokenStr)
		if err != nil {
			t.Fatalf("VerifyAccess()でエラーが発生: %v", err)
		}
		if claims.UserID != testIdentity.UserID || claims.Subject != testIdentity.UserID {
			t.Errorf("UserID = %q, Subject = %q, want %q", claims.UserID, claims.Subject, testIdentity.UserID)
		}
		if claims.Email != testIdentity.Email {
			t.Errorf("Email = %q, want %q", claims.Email, testIdentity.Email)
		}
		if claims.Role != testIdentity.Role {
			t.Errorf("Role = %q, want %q", claims.Role, testIdentity.Role)
		}
		if claims.Type != "" {
			t.Errorf("Type = %q, want empty", claims.Type)
		}
		if !claims.IssuedAt.Time.Equal(baseTime) {
			t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt.Time, baseTime)
		}
		if !claims.ExpiresAt.Time.Equal(baseTime.Add(24 * time.Hour)) {
			t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, baseTime.Add(24*time.Hour))
		}
	})

	t.Run("有効期限の直前までは有効で、経過後は無効になること", func(t *testing.T) {
		t.Parallel()

		iss, clock := newTestIssuer(t)
		tokenStr, err := iss.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}

		clock.now = baseTime.Add(24*time.Hour - time.Second)
		if _, err := iss.VerifyAccess(tokenStr); err != nil {
			t.Errorf("有効期限前の検証でエラーが発生: %v", err)
		}

		clock.now = baseTime.Add(24*time.Hour + time.Second)
		if _, err := iss.VerifyAccess(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("署名アルゴリズムがHS256であること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		tokenStr, err := iss.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}

		token, _, err := new(jwt.Parser).ParseUnverified(tokenStr, &Claims{})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})

	t.Run("ユーザーIDが空の場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		if _, err := iss.IssueAccess(Identity{Email: "x@example.com", Role: RoleCustomer}); err == nil {
			t.Fatal("ユーザーIDが空の場合はエラーを返すべき")
		}
	})
}

// TestIssueRefresh はリフレッシュトークンの発行と検証を検証する。
func TestIssueRefresh(t *testing.T) {
	t.Parallel()

	t.Run("type=refreshのクレームを持ち7日後に失効すること", func(t *testing.T) {
		t.Parallel()

		iss, clock := newTestIssuer(t)
		tokenStr, expiresAt, err := iss.IssueRefresh("user-123")
		if err != nil {
			t.Fatalf("IssueRefresh()でエラーが発生: %v", err)
		}
		if !expiresAt.Equal(baseTime.Add(7 * 24 * time.Hour)) {
			t.Errorf("expiresAt = %v, want %v", expiresAt, baseTime.Add(7*24*time.Hour))
		}

		claims, err := iss.VerifyRefresh(tokenStr)
		if err != nil {
			t.Fatalf("VerifyRefresh()でエラーが発生: %v", err)
		}
		if claims.Type != TypeRefresh {
			t.Errorf("Type = %q, want %q", claims.Type, TypeRefresh)
		}
		if claims.Email != "" || claims.Role != "" {
			t.Errorf("リフレッシュトークンにEmail/Roleが含まれている: %q, %q", claims.Email, claims.Role)
		}

		clock.now = expiresAt.Add(time.Second)
		if _, err := iss.VerifyRefresh(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})
}

// TestClaimsShape はクレーム形状の検査を検証する。
func TestClaimsShape(t *testing.T) {
	t.Parallel()

	t.Run("リフレッシュトークンはアクセストークンとして拒否されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		refresh, _, err := iss.IssueRefresh("user-123")
		if err != nil {
			t.Fatalf("IssueRefresh()でエラーが発生: %v", err)
		}

		// 署名検証だけなら成功する
		if _, err := iss.Verify(refresh); err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if _, err := iss.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("アクセストークンはリフレッシュトークンとして拒否されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		access, err := iss.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}
		if _, err := iss.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("type=accessのトークンはリフレッシュトークンとして拒否されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		claims := &Claims{
			RegisteredClaims: iss.registered("user-123", time.Hour),
			UserID:           "user-123",
			Type:             "access",
		}
		tokenStr, err := iss.sign(claims)
		if err != nil {
			t.Fatalf("sign()でエラーが発生: %v", err)
		}
		if _, err := iss.VerifyRefresh(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})
}

// TestVerify は不正なトークンの検証を検証する。
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("異なるシークレットで署名されたトークンは無効になること", func(t *testing.T) {
		t.Parallel()

		other, err := NewIssuer(Config{Secret: []byte("different-secret")})
		if err != nil {
			t.Fatalf("NewIssuer()でエラーが発生: %v", err)
		}
		tokenStr, err := other.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}

		v, err := NewVerifier(Config{Secret: []byte(testSecret)})
		if err != nil {
			t.Fatalf("NewVerifier()でエラーが発生: %v", err)
		}
		if _, err := v.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("不正な形式の文字列は無効になること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		for _, s := range []string{"", "invalid-token-string", "a.b.c", "not.a.jwt"} {
			if _, err := iss.Verify(s); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%q) err = %v, want %v", s, err, ErrInvalidToken)
			}
		}
	})

	t.Run("HS256以外のアルゴリズムは拒否されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		claims := &Claims{
			RegisteredClaims: iss.registered("user-123", time.Hour),
			UserID:           "user-123",
			Email:            "test@example.com",
			Role:             RoleCustomer,
		}
		tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}
		if _, err := iss.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("有効期限の無いトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		iss, _ := newTestIssuer(t)
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123", Issuer: DefaultIssuer},
			UserID:           "user-123",
			Email:            "test@example.com",
			Role:             RoleCustomer,
		}
		tokenStr, err := iss.sign(claims)
		if err != nil {
			t.Fatalf("sign()でエラーが発生: %v", err)
		}
		if _, err := iss.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("発行者が異なるトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		other, err := NewIssuer(Config{Secret: []byte(testSecret), Issuer: "someone-else"})
		if err != nil {
			t.Fatalf("NewIssuer()でエラーが発生: %v", err)
		}
		tokenStr, err := other.IssueAccess(testIdentity)
		if err != nil {
			t.Fatalf("IssueAccess()でエラーが発生: %v", err)
		}

		iss, _ := newTestIssuer(t)
		if _, err := iss.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want %v", err, ErrInvalidToken)
		}
	})
}

// TestRoleValid はRole.Validを検証する。
func TestRoleValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role Role
		want bool
	}{
		{RoleCustomer, true},
		{RoleAdmin, true},
		{"", false},
		{"superuser", false},
		{"Admin", false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
