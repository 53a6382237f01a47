// Package password はbcryptによるパスワードのハッシュ化と検証を提供する。
//
// ハッシュはソルトを内包するため、同じ平文でも呼び出しごとに異なる値になる。
// 検証は不正な形式のハッシュに対しても false を返し、呼び出し元にエラーを返さない。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost はbcryptのデフォルトのコスト。
const DefaultCost = 10

// ErrTooLong はbcryptが扱えない長さのパスワードを表す。
var ErrTooLong = errors.New("password: 72バイトを超えるパスワードは使用できません")

// Hasher はパスワードのハッシュ化と検証を行う。
// 生成後は不変であり、複数のgoroutineから同時に使用できる。
type Hasher struct {
	// cost はbcryptのコスト。
	cost int
	// decoy はタイミングを揃えるための比較用ハッシュ。
	decoy []byte
}

// NewHasher は指定コストのHasherを生成する。costが0の場合はDefaultCostを使用する。
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password: コストは%d〜%dの範囲で指定してください (got: %d)", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}

	decoy, err := bcrypt.GenerateFromPassword([]byte("cloudmart-decoy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("password: 比較用ハッシュの生成に失敗: %w", err)
	}
	return &Hasher{cost: cost, decoy: decoy}, nil
}

// Cost はbcryptのコストを返す。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードのハッシュを返す。
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", fmt.Errorf("password: ハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// Verify は平文パスワードがハッシュと一致するかを返す。
// ハッシュの形式が不正な場合も false を返す。
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Decoy は比較用ハッシュに対して検証を行い、結果を捨てる。
// 存在しないアカウントへのログインでも、パスワード検証と同等の時間を消費させる。
func (h *Hasher) Decoy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(plain))
}
