package security

import (
	"PPChat/global"
	"PPChat/tools/errs"
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// —— header ——
const (
	PPCtxAuthKey      = "authorization"
	HeaderInternalKey = "X-Internal-Key"
)

// TokenVerifier token -> user id
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	Verifier                  TokenVerifier
}

var (
	mu          sync.RWMutex
	verifier    TokenVerifier
	internalKey string
)

// Configure 启动时注入校验器与内部密钥
func Configure(v TokenVerifier, key string) {
	mu.Lock()
	defer mu.Unlock()
	verifier = v
	internalKey = key
}

func DefaultOptions() *Options {
	mu.RLock()
	defer mu.RUnlock()
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		Verifier:                  verifier,
	}
}

// Middleware 校验用户令牌，成功后写入 global.UserSession
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			} else if token == "" {
				if authz := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" {
			abort(c, errs.ErrInvalidToken.WrapMsg("missing token"))
			return
		}
		if opts.Verifier == nil {
			abort(c, errs.ErrAuthFailed.WrapMsg("verifier not configured"))
			return
		}
		userID, err := opts.Verifier.Verify(token)
		if err != nil {
			abort(c, err)
			return
		}
		global.SetUserSession(c, &global.UserSession{UserID: userID, Token: token})
		c.Next()
	}
}

// Internal 服务间调用，校验共享密钥；未配置密钥时一律拒绝
func Internal() gin.HandlerFunc {
	return func(c *gin.Context) {
		mu.RLock()
		key := internalKey
		mu.RUnlock()
		got := c.GetHeader(HeaderInternalKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			abort(c, errs.ErrForbidden.WrapMsg("internal key mismatch"))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(global.HTTPStatus(err), global.Fail(err))
}
