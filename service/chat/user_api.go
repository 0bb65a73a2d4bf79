package chat

import (
	"PPChat/global"
	mid "PPChat/middleware"
	"PPChat/tools/errs"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserRoutes 携带用户令牌的查询接口
func (s *Server) UserRoutes(r gin.IRoutes) {
	mid.GET(r, "/api/rooms/:room_id/online", s.handleRoomOnline, mid.RouteOpt{IsAuth: true})
}

// handleRoomOnline 仅成员可查：房间内已连接的用户，以及本节点 presence 在线的成员
func (s *Server) handleRoomOnline(c *gin.Context) {
	sess, ok := global.GetUserSession(c)
	if !ok {
		err := errs.ErrAuthFailed.WrapMsg("no session")
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}
	roomID := c.Param("room_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), internalTimeout)
	defer cancel()

	room, err := s.hub.store.Room(ctx, roomID)
	if err == nil && !room.IsMember(sess.UserID) {
		err = errs.ErrForbidden.WrapMsg("not a member", "room_id", roomID, "user", sess.UserID)
	}
	if err != nil {
		c.JSON(global.HTTPStatus(err), global.Fail(err))
		return
	}

	inRoom := []int64{}
	if rs, open := s.hub.sessions.Session(roomID); open {
		inRoom = rs.ConnectedUsers()
	}
	c.JSON(http.StatusOK, global.Success(gin.H{
		"room_id": roomID,
		"active":  room.IsActive,
		"in_room": inRoom,
		"online":  s.hub.registry.Online(room.MemberIDs()),
	}))
}
