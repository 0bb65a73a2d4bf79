package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAllowed 浏览器 websocket 的 Origin 白名单；空名单或 "*" 全部放行，无 Origin（非浏览器）放行
func OriginAllowed(allow []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allow))
	for _, a := range allow {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Host)]
		return ok
	}
}

// Origin websocket 路径上的 Origin 校验
func Origin(allow []string) gin.HandlerFunc {
	check := OriginAllowed(allow)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && strings.HasPrefix(c.Request.URL.Path, "/ws") && !check(c.Request) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
