package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nao1215/cloudmart/pkg/apperror"
	"github.com/nao1215/cloudmart/pkg/token"
)

const (
	// contextKeyClaims はGinコンテキストにクレームを格納するキー。
	contextKeyClaims = "claims"
	// contextKeyUserID はGinコンテキストにユーザーIDを格納するキー。
	contextKeyUserID = "user_id"
)

// Authenticate はGateによる認証を行うGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにクレームとユーザーIDを設定する。
// 公開パスの場合は何も設定せずに次のハンドラへ進む。
func Authenticate(gate *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := gate.Check(c.Request.URL.Path, c.GetHeader("Authorization"))
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		if claims != nil {
			c.Set(contextKeyClaims, claims)
			c.Set(contextKeyUserID, claims.UserID)
		}
		c.Next()
	}
}

// JWTAuth は公開パスを持たない Authenticate のショートカット。
func JWTAuth(verifier AccessVerifier) gin.HandlerFunc {
	return Authenticate(NewGate(verifier))
}

// Authorize は指定ロールのみを許可するGinミドルウェアを返す。
// Authenticate の後に適用する必要がある。
func Authorize(roles ...token.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := RequireRole(GetClaims(c), roles...); err != nil {
			apperror.Respond(c, err)
			return
		}
		c.Next()
	}
}

// GetClaims はGinコンテキストからクレームを取得する。
// 認証されていない場合は nil を返す。
func GetClaims(c *gin.Context) *token.Claims {
	v, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.Claims)
	return claims
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
