package chat

import (
	"PPChat/global"
	mid "PPChat/middleware"
	"PPChat/tools/errs"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const internalTimeout = 5 * time.Second

// InternalRoutes 供 CRUD 服务调用的房间生命周期接口，需内部密钥
func (s *Server) InternalRoutes(r gin.IRoutes) {
	opt := mid.RouteOpt{Internal: true}
	mid.POST(r, "/internal/rooms/:room_id/deactivate", s.handleDeactivate, opt)
	mid.POST(r, "/internal/rooms/:room_id/activate", s.handleActivate, opt)
	mid.POST(r, "/internal/rooms/:room_id/close", s.handleForceClose, opt)
	mid.GET(r, "/internal/rooms/:room_id/session", s.handleSession, opt)
	mid.POST(r, "/internal/notifications", s.handleNotification, opt)
}

func (s *Server) handleDeactivate(c *gin.Context) {
	roomID := c.Param("room_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), internalTimeout)
	defer cancel()
	closed, err := s.hub.DeactivateRoom(ctx, roomID)
	if err != nil {
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}
	c.JSON(http.StatusOK, global.Success(gin.H{"room_id": roomID, "session_closed": closed}))
}

func (s *Server) handleActivate(c *gin.Context) {
	roomID := c.Param("room_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), internalTimeout)
	defer cancel()
	if err := s.hub.ActivateRoom(ctx, roomID); err != nil {
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}
	c.JSON(http.StatusOK, global.Success(gin.H{"room_id": roomID}))
}

func (s *Server) handleForceClose(c *gin.Context) {
	roomID := c.Param("room_id")
	c.JSON(http.StatusOK, global.Success(gin.H{"room_id": roomID, "closed": s.hub.ForceClose(roomID)}))
}

func (s *Server) handleSession(c *gin.Context) {
	roomID := c.Param("room_id")
	users := []int64{}
	sess, open := s.hub.sessions.Session(roomID)
	if open {
		users = sess.ConnectedUsers()
	}
	c.JSON(http.StatusOK, global.Success(gin.H{"room_id": roomID, "open": open, "users": users}))
}

// NotificationRequest 通知服务推送给在线用户
type NotificationRequest struct {
	UserID       int64           `json:"user_id"`
	Notification json.RawMessage `json:"notification"`
	SenderUser   *SenderUser     `json:"sender_user,omitempty"`
}

func (r *NotificationRequest) validate() error {
	if r.UserID == 0 {
		return errs.ErrProtocol.WrapMsg("missing user_id")
	}
	if len(r.Notification) == 0 {
		return errs.ErrProtocol.WrapMsg("missing notification")
	}
	return nil
}

func (s *Server) handleNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		err = errs.ErrProtocol.WrapMsg("invalid body", "err", err)
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}
	delivered := s.hub.PushNotification(req.UserID, req.Notification, req.SenderUser)
	c.JSON(http.StatusOK, global.Success(gin.H{"delivered": delivered}))
}
