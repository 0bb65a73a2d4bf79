package chat

import (
	"PPChat/global"
	"PPChat/logger"
	"PPChat/tools/errs"
	"PPChat/tools/safe"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenVerifier token -> user id；失败返回 InvalidToken / ExpiredToken
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type ServerConfig struct {
	HandshakeTimeout time.Duration // 首帧 token 的等待时间
	FrameTimeout     time.Duration // 单帧处理（含存储）超时
	ReadBufferSize   int
	WriteBufferSize  int
	CheckOrigin      func(r *http.Request) bool
	Conn             ConnConf
}

func (c *ServerConfig) norm() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 5 * time.Second
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4096
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true }
	}
	c.Conn.norm()
}

// Server websocket 入口
type Server struct {
	hub      *Hub
	verifier TokenVerifier
	cfg      ServerConfig
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, verifier TokenVerifier, cfg ServerConfig) *Server {
	safe.MustNotNil(hub, "hub")
	safe.MustNotNil(verifier, "verifier")
	cfg.norm()
	return &Server{
		hub:      hub,
		verifier: verifier,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Routes 注册 websocket 路由；/ws/connection 需先于 /ws/:room_id 匹配
func (s *Server) Routes(r gin.IRoutes) {
	r.GET("/ws", s.HandlePresence)
	r.GET("/ws/connection", s.HandleConnections)
	r.GET("/ws/:room_id", s.HandleRoom)
}

// HandlePresence GET /ws
func (s *Server) HandlePresence(c *gin.Context) {
	wc, ok := s.open(c)
	if !ok {
		return
	}
	userID := wc.UserID()
	presence := s.hub.NewPresence(wc)
	wc.OnPong(func() { s.hub.registry.Heartbeat(userID, wc) })
	presence.Connect()
	logger.Info("[WS] presence connected", zap.Int64("user", userID), zap.String("conn", wc.ID()))

	defer func() {
		presence.Disconnect()
		_ = wc.Close(CloseNormal, "")
		<-wc.Done()
		logger.Info("[WS] presence disconnected", zap.Int64("user", userID), zap.String("conn", wc.ID()))
	}()
	defer safe.Recover("ws.presence", nil)

	for {
		data, err := wc.ReadFrame()
		if err != nil {
			logReadErr(wc, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FrameTimeout)
		_ = presence.HandleFrame(ctx, data)
		cancel()
	}
}

// HandleRoom GET /ws/:room_id；先鉴权再查房间
func (s *Server) HandleRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	wc, ok := s.open(c)
	if !ok {
		return
	}
	userID := wc.UserID()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FrameTimeout)
	sess, err := s.hub.sessions.Connect(ctx, roomID, wc)
	cancel()
	if err != nil {
		code, reason := closeCodeFor(err)
		logger.Info("[WS] room connect rejected",
			zap.String("room", roomID), zap.Int64("user", userID), zap.Int("code", code), zap.Error(err))
		_ = wc.Close(code, reason)
		<-wc.Done()
		return
	}
	logger.Info("[WS] room connected", zap.String("room", roomID), zap.Int64("user", userID), zap.String("conn", wc.ID()))

	defer func() {
		s.hub.sessions.Disconnect(roomID, userID, wc)
		_ = wc.Close(CloseNormal, "")
		<-wc.Done()
		logger.Info("[WS] room disconnected", zap.String("room", roomID), zap.Int64("user", userID), zap.String("conn", wc.ID()))
	}()
	defer safe.Recover("ws.room", nil)

	for {
		data, err := wc.ReadFrame()
		if err != nil {
			logReadErr(wc, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FrameTimeout)
		err = sess.HandleFrame(ctx, wc, data)
		cancel()
		if errs.ErrRoomInactive.Is(err) {
			return
		}
	}
}

// HandleConnections GET /ws/connection
func (s *Server) HandleConnections(c *gin.Context) {
	c.JSON(http.StatusOK, global.Success(gin.H{
		"rooms":    s.hub.Connections(),
		"presence": s.hub.registry.UserIDs(),
	}))
}

// open 升级 + 握手鉴权；失败时连接已关闭
func (s *Server) open(c *gin.Context) (*WsConn, bool) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Info("[WS] upgrade failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		return nil, false
	}
	wc := NewWsConn(ws, s.cfg.Conn)

	token, err := wc.ReadHandshake(s.cfg.HandshakeTimeout)
	if err == nil {
		var userID int64
		if userID, err = s.verifier.Verify(token); err == nil {
			wc.Bind(userID)
			return wc, true
		}
	} else if _, ok := errs.AsCode(err); !ok {
		err = errs.ErrInvalidToken.WrapMsg("handshake", "err", err)
	}
	code, reason := closeCodeFor(err)
	logger.Info("[WS] handshake rejected", zap.String("conn", wc.ID()), zap.Error(err))
	_ = wc.Close(code, reason)
	<-wc.Done()
	return nil, false
}

// closeCodeFor 错误码 -> websocket 关闭码
func closeCodeFor(err error) (int, string) {
	switch {
	case errs.ErrTokenExpired.Is(err):
		return CloseAuthFailed, "expired_token"
	case errs.ErrAuthFailed.Is(err):
		return CloseAuthFailed, "invalid_token"
	case errs.ErrRoomNotFound.Is(err):
		return CloseRoomNotFound, "room_not_found"
	case errs.ErrRoomInactive.Is(err):
		return CloseRoomInactive, "room_inactive"
	case errs.ErrForbidden.Is(err):
		return CloseForbidden, "forbidden"
	default:
		return websocket.CloseInternalServerErr, "internal_error"
	}
}

func logReadErr(wc *WsConn, err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Debug("[WS] peer closed", zap.String("conn", wc.ID()), zap.Int64("user", wc.UserID()))
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("[WS] read timeout", zap.String("conn", wc.ID()), zap.Int64("user", wc.UserID()))
	default:
		logger.Debug("[WS] read err", zap.String("conn", wc.ID()), zap.Int64("user", wc.UserID()), zap.Error(err))
	}
}
