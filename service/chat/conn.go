package chat

import (
	"PPChat/logger"
	"PPChat/tools/errs"
	"PPChat/tools/ids"
	"PPChat/tools/safe"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn 已鉴权的一条连接；Send 非阻塞，队列满或已关闭返回 DeliveryFailure
type Conn interface {
	ID() string
	UserID() int64
	Send(frame []byte) error
	Close(code int, reason string) error
}

type ConnConf struct {
	SendQueue    int           // 每连接发送队列
	WriteWait    time.Duration // 单次写超时
	PingInterval time.Duration // ping 周期，读超时为其两倍
	ReadLimit    int64
}

func (c *ConnConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
}

// WsConn gorilla 连接 + 单写协程
type WsConn struct {
	id     string
	userID atomic.Int64
	ws     *websocket.Conn
	conf   ConnConf

	send   chan []byte
	closed chan struct{}
	done   chan struct{} // 写协程退出

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	CreatedAt time.Time
	heartbeat atomic.Int64 // unix ms
	onPong    func()
}

func NewWsConn(ws *websocket.Conn, conf ConnConf) *WsConn {
	conf.norm()
	now := time.Now()
	c := &WsConn{
		id:        ids.ConnID(),
		ws:        ws,
		conf:      conf,
		send:      make(chan []byte, conf.SendQueue),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		CreatedAt: now,
	}
	c.heartbeat.Store(now.UnixMilli())
	ws.SetReadLimit(conf.ReadLimit)
	ws.SetPongHandler(func(string) error {
		c.heartbeat.Store(time.Now().UnixMilli())
		_ = ws.SetReadDeadline(time.Now().Add(c.pongWait()))
		if c.onPong != nil {
			c.onPong()
		}
		return nil
	})
	safe.SafeGo("ws:writePump", c.writePump)
	return c
}

func (c *WsConn) ID() string { return c.id }

func (c *WsConn) UserID() int64 { return c.userID.Load() }

// Bind 鉴权通过后绑定用户
func (c *WsConn) Bind(userID int64) { c.userID.Store(userID) }

// OnPong 必须在读循环开始前设置
func (c *WsConn) OnPong(f func()) { c.onPong = f }

func (c *WsConn) Heartbeat() time.Time { return time.UnixMilli(c.heartbeat.Load()) }

func (c *WsConn) Send(frame []byte) error {
	select {
	case <-c.closed:
		return errs.ErrDeliveryFailure.WrapMsg("connection closed", "conn", c.id)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errs.ErrDeliveryFailure.WrapMsg("send queue full", "conn", c.id)
	}
}

// Close 幂等；关闭帧由写协程发出
func (c *WsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
	})
	return nil
}

// Done 写协程退出、底层连接已关闭
func (c *WsConn) Done() <-chan struct{} { return c.done }

// ReadHandshake 读取第一帧（token），超时即失败
func (c *WsConn) ReadHandshake(timeout time.Duration) (string, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if mt != websocket.TextMessage {
		return "", errs.ErrInvalidToken.WrapMsg("handshake must be a text frame")
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	return string(data), nil
}

// ReadFrame 只返回文本/二进制帧
func (c *WsConn) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WsConn) pongWait() time.Duration { return 2 * c.conf.PingInterval }

func (c *WsConn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("[WS] write failed", zap.String("conn", c.id), zap.Int64("user", c.UserID()), zap.Error(err))
				_ = c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Debug("[WS] ping failed", zap.String("conn", c.id), zap.Error(err))
				_ = c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.closed:
			if c.closeCode != websocket.CloseAbnormalClosure {
				c.flush()
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.conf.WriteWait))
			}
			return
		}
	}
}

// flush 关闭前尽量写出已入队的帧
func (c *WsConn) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
