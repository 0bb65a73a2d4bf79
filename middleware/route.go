package middleware

import (
	midsec "PPChat/middleware/security"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth   bool // 用户令牌
	Internal bool // 内部密钥
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	hs := make([]gin.HandlerFunc, 0, 3)
	if o.Internal {
		hs = append(hs, midsec.Internal())
	}
	if o.IsAuth {
		hs = append(hs, midsec.Middleware(midsec.DefaultOptions()))
	}
	return append(hs, handler)
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
