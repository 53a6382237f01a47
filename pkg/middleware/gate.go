package middleware

import (
	"strings"

	"github.com/nao1215/cloudmart/pkg/apperror"
	"github.com/nao1215/cloudmart/pkg/token"
)

// AccessVerifier はアクセストークンを検証するインターフェース。
// *token.Verifier と *token.Issuer が満たす。
type AccessVerifier interface {
	VerifyAccess(tokenString string) (*token.Claims, error)
}

// bearerPrefix はAuthorizationヘッダーのスキーム。
const bearerPrefix = "Bearer "

// Gate はリクエストの認証判定を行う。
// 公開パスの判定 → Bearerトークンの抽出 → 検証 の順に処理する。
type Gate struct {
	verifier    AccessVerifier
	publicPaths []string
}

// NewGate は新しいGateを生成する。publicPathsは前方一致で判定する。
func NewGate(verifier AccessVerifier, publicPaths ...string) *Gate {
	return &Gate{verifier: verifier, publicPaths: publicPaths}
}

// IsPublic はpathが認証不要のパスかどうかを返す。
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.publicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Check はリクエストパスとAuthorizationヘッダーから認証結果を返す。
// 公開パスの場合は (nil, nil) を返し、ヘッダーは参照しない。
func (g *Gate) Check(path, authorization string) (*token.Claims, error) {
	if g.IsPublic(path) {
		return nil, nil
	}

	tokenString, err := ExtractBearer(authorization)
	if err != nil {
		return nil, err
	}

	claims, err := g.verifier.VerifyAccess(tokenString)
	if err != nil {
		return nil, apperror.InvalidToken()
	}
	return claims, nil
}

// ExtractBearer は "Bearer <token>" 形式のヘッダーからトークンを取り出す。
// ヘッダーが無い、スキームが異なる、トークンが空の場合は AuthenticationRequired を返す。
func ExtractBearer(authorization string) (string, error) {
	tokenString, found := strings.CutPrefix(authorization, bearerPrefix)
	if !found {
		return "", apperror.AuthenticationRequired()
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", apperror.AuthenticationRequired()
	}
	return tokenString, nil
}

// RequireRole はクレームのロールが許可されたロールに含まれるかを検査する。
// クレームが無い場合や未知のロールの場合は権限なしとして Forbidden を返す。
func RequireRole(claims *token.Claims, allowed ...token.Role) error {
	if claims == nil || !claims.Role.Valid() {
		return apperror.Forbidden()
	}
	for _, r := range allowed {
		if claims.Role == r {
			return nil
		}
	}
	return apperror.Forbidden()
}
