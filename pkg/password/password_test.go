package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// newTestHasher はテスト用に最小コストのHasherを生成する。
func newTestHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher()でエラーが発生: %v", err)
	}
	return h
}

// TestNewHasher はNewHasher関数を検証する。
func TestNewHasher(t *testing.T) {
	t.Parallel()

	t.Run("コスト0の場合にデフォルトコストになること", func(t *testing.T) {
		t.Parallel()

		h, err := NewHasher(0)
		if err != nil {
			t.Fatalf("NewHasher()でエラーが発生: %v", err)
		}
		if h.Cost() != DefaultCost {
			t.Errorf("Cost() = %d, want %d", h.Cost(), DefaultCost)
		}
	})

	t.Run("範囲外のコストはエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, cost := range []int{1, 3, 32} {
			if _, err := NewHasher(cost); err == nil {
				t.Errorf("NewHasher(%d)がエラーを返すべき", cost)
			}
		}
	})
}

// TestHashAndVerify はハッシュ化と検証を検証する。
func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	t.Run("ハッシュ化したパスワードを検証できること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		for _, p := range []string{"password123", "日本語のパスワード", " spaces in it ", "a"} {
			hash, err := h.Hash(p)
			if err != nil {
				t.Fatalf("Hash(%q)でエラーが発生: %v", p, err)
			}
			if !h.Verify(p, hash) {
				t.Errorf("Verify(%q, hash) = false, want true", p)
			}
		}
	})

	t.Run("同じパスワードでも呼び出しごとに異なるハッシュになること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		first, err := h.Hash("password123")
		if err != nil {
			t.Fatalf("Hash()でエラーが発生: %v", err)
		}
		second, err := h.Hash("password123")
		if err != nil {
			t.Fatalf("Hash()でエラーが発生: %v", err)
		}

		if first == second {
			t.Error("2回のHash()が同じ値を返した")
		}
		if !h.Verify("password123", first) || !h.Verify("password123", second) {
			t.Error("どちらのハッシュでも検証に成功するべき")
		}
	})

	t.Run("誤ったパスワードは検証に失敗すること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		hash, err := h.Hash("password123")
		if err != nil {
			t.Fatalf("Hash()でエラーが発生: %v", err)
		}
		if h.Verify("password124", hash) {
			t.Error("誤ったパスワードで検証に成功した")
		}
	})

	t.Run("不正な形式のハッシュではfalseが返ること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		for _, hash := range []string{"", "not-a-hash", "$2a$04$short"} {
			if h.Verify("password123", hash) {
				t.Errorf("Verify(_, %q) = true, want false", hash)
			}
		}
	})

	t.Run("72バイトを超えるパスワードはErrTooLongになること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		_, err := h.Hash(strings.Repeat("a", 73))
		if !errors.Is(err, ErrTooLong) {
			t.Errorf("err = %v, want %v", err, ErrTooLong)
		}
	})

	t.Run("設定したコストがハッシュに埋め込まれること", func(t *testing.T) {
		t.Parallel()

		h := newTestHasher(t)
		hash, err := h.Hash("password123")
		if err != nil {
			t.Fatalf("Hash()でエラーが発生: %v", err)
		}
		cost, err := bcrypt.Cost([]byte(hash))
		if err != nil {
			t.Fatalf("bcrypt.Cost()でエラーが発生: %v", err)
		}
		if cost != bcrypt.MinCost {
			t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost)
		}
	})
}

// TestDecoy はDecoyがパニックしないことを検証する。
func TestDecoy(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t)
	h.Decoy("anything")
	h.Decoy("")
}
