package global

import "github.com/gin-gonic/gin"

const CtxUserSessionKey = "user_session"

// UserSession 鉴权中间件写入的请求身份
type UserSession struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"-"`
}

func SetUserSession(c *gin.Context, s *UserSession) {
	c.Set(CtxUserSessionKey, s)
}

func GetUserSession(c *gin.Context) (*UserSession, bool) {
	v, ok := c.Get(CtxUserSessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*UserSession)
	return s, ok && s != nil
}
