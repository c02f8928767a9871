package auth

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"LIBRA-backend/internal/platform/apperr"
)

const ctxPrincipalKey = "principal"

// Principal は認証済みの呼び出し元。各サービスへ明示的に渡す。
type Principal struct {
	UserID  int64
	Email   string
	IsStaff bool
}

// RequireAuth: Authorization: Bearer <token> を検証して context に Principal を詰める
func RequireAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, apperr.Unauthenticated("authentication credentials were not provided"))
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperr.Unauthenticated("invalid Authorization header"))
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, apperr.Unauthenticated("empty token"))
			return
		}

		if !setPrincipal(c, tokens, tokenStr) {
			return
		}
		c.Next()
	}
}

// RequireAuthQuery はブラウザの WebSocket 用。ヘッダを付けられないので ?token= で受ける。
func RequireAuthQuery(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			abort(c, apperr.Unauthenticated("missing token"))
			return
		}
		if !setPrincipal(c, tokens, tokenStr) {
			return
		}
		c.Next()
	}
}

func setPrincipal(c *gin.Context, tokens *Tokens, tokenStr string) bool {
	claims, err := tokens.Parse(tokenStr, TokenAccess)
	if err != nil {
		abort(c, apperr.Unauthenticated("given token not valid for any token type"))
		return false
	}
	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	c.Set(ctxPrincipalKey, Principal{UserID: id, Email: claims.Email, IsStaff: claims.Staff})
	return true
}

// RequireStaff: RequireAuth の後ろに置く
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abort(c, apperr.Unauthenticated("authentication credentials were not provided"))
			return
		}
		if !p.IsStaff {
			abort(c, apperr.Forbidden("you do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// MustPrincipal は RequireAuth 配下のハンドラ用
func MustPrincipal(c *gin.Context) Principal {
	p, ok := PrincipalFrom(c)
	if !ok {
		panic("auth: handler registered without RequireAuth")
	}
	return p
}

func abort(c *gin.Context, err *apperr.APIError) {
	c.AbortWithStatusJSON(apperr.ToHTTPStatus(err), apperr.Body(err))
}
