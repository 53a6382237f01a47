package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/cloudmart/pkg/apperror"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時は内部エラーとしてログに出力し、500エラーを返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				apperror.Respond(c, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}
