package chat

import (
	"PPChat/logger"
	"PPChat/module/chat/message"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"sync"

	"go.uber.org/zap"
)

// RoomSession 一个房间的在线会话，仅运行时存在
type RoomSession struct {
	roomID   string
	roomType chatmodel.RoomType
	members  []int64            // 房间全部成员（创建时缓存）
	isMember map[int64]struct{} //

	mu     sync.RWMutex
	conns  map[int64]Conn
	closed bool

	table *SessionTable
}

func newRoomSession(roomID string, room *chatmodel.ChatRoom, t *SessionTable) *RoomSession {
	members := room.MemberIDs()
	set := make(map[int64]struct{}, len(members))
	for _, id := range members {
		set[id] = struct{}{}
	}
	return &RoomSession{
		roomID:   roomID,
		roomType: room.Type,
		members:  members,
		isMember: set,
		conns:    make(map[int64]Conn),
		table:    t,
	}
}

func (s *RoomSession) RoomID() string { return s.roomID }

func (s *RoomSession) Type() chatmodel.RoomType { return s.roomType }

func (s *RoomSession) Members() []int64 { return append([]int64(nil), s.members...) }

// ConnectedUsers 当前挂接的用户（升序），恒为成员集合的子集
func (s *RoomSession) ConnectedUsers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.conns)
}

func (s *RoomSession) Conn(userID int64) (Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[userID]
	return c, ok
}

func (s *RoomSession) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// attach 由 SessionTable 在持有 table 锁时调用
func (s *RoomSession) attach(userID int64, c Conn) (prev Conn, err error) {
	if _, ok := s.isMember[userID]; !ok {
		return nil, errs.ErrForbidden.WrapMsg("not a room member", "room_id", s.roomID, "user", userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errs.ErrRoomInactive.WrapMsg("session closed", "room_id", s.roomID)
	}
	prev = s.conns[userID]
	if prev == c {
		prev = nil
	}
	s.conns[userID] = c
	return prev, nil
}

// detach 返回是否摘除、会话是否已空（空则标记关闭）
func (s *RoomSession) detach(userID int64, c Conn) (removed, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.conns[userID]; ok && cur == c {
		delete(s.conns, userID)
		removed = true
	}
	if len(s.conns) == 0 {
		s.closed = true
		empty = true
	}
	return removed, empty
}

func (s *RoomSession) closeAll() []Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	s.conns = make(map[int64]Conn)
	s.closed = true
	return out
}

// HandleFrame 单连接内严格按序调用；帧级错误回给发起方，会话不受影响
func (s *RoomSession) HandleFrame(ctx context.Context, c Conn, raw []byte) error {
	if s.Closed() {
		return errs.ErrRoomInactive.WrapMsg("session closed", "room_id", s.roomID)
	}
	frame, err := ParseFrame(raw)
	if err == nil {
		err = s.checkSender(c, frame)
	}
	if err == nil {
		switch f := frame.(type) {
		case *NewMessageFrame:
			err = s.handleNewMessage(ctx, c, f)
		case *StatusUpdateFrame:
			err = s.handleStatusUpdate(ctx, c, f)
		default:
			err = errs.ErrProtocol.WrapMsg("unsupported frame", "event", frame.Event())
		}
	}
	if err != nil {
		s.replyError(c, err)
	}
	return err
}

func (s *RoomSession) checkSender(c Conn, f Frame) error {
	if su := f.Sender(); su != nil && su.ID != 0 && su.ID != c.UserID() {
		return errs.ErrProtocol.WrapMsg("sender_user does not match connection", "sender", su.ID)
	}
	if nm, ok := f.(*NewMessageFrame); ok && nm.RoomID != "" && nm.RoomID != s.roomID {
		return errs.ErrProtocol.WrapMsg("room_id does not match connection", "room_id", nm.RoomID)
	}
	return nil
}

func (s *RoomSession) handleNewMessage(ctx context.Context, c Conn, f *NewMessageFrame) error {
	msg, err := chatmodel.NewMessage(s.roomID, c.UserID(), f.MessageText, f.MessageType, f.FileLinks)
	if err != nil {
		return err
	}
	if err := s.table.store.Save(ctx, msg); err != nil {
		return errs.ErrPersistenceFailure.WrapMsg("save message", "room_id", s.roomID, "err", err)
	}
	s.Broadcast(BuildMessagesFrame(EventNewMessage, []*chatmodel.Message{msg}, f.SenderUser))
	s.table.publisher.MessageCreated(ctx, msg)
	return nil
}

func (s *RoomSession) handleStatusUpdate(ctx context.Context, c Conn, f *StatusUpdateFrame) error {
	changed, err := message.AdvanceStatus(ctx, s.table.store, message.StatusUpdate{
		MessageIDs: f.MessageIDs,
		Target:     f.Status,
		Actor:      c.UserID(),
		RoomID:     s.roomID,
	})
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	s.Broadcast(BuildMessagesFrame(EventChangeMessageStatus, changed, f.SenderUser))
	s.table.publisher.StatusChanged(ctx, c.UserID(), changed)
	return nil
}

// Broadcast 发给全部挂接连接；未挂接的成员走 Registry.Push。
// 单个连接发送失败即摘除并关闭，不影响其他目标
func (s *RoomSession) Broadcast(frame []byte) (delivered int) {
	s.mu.RLock()
	attached := make(map[int64]Conn, len(s.conns))
	for id, c := range s.conns {
		attached[id] = c
	}
	s.mu.RUnlock()

	for userID, c := range attached {
		if err := c.Send(frame); err != nil {
			logger.Warn("[Room] send failed, detach",
				zap.String("room", s.roomID), zap.Int64("user", userID), zap.String("conn", c.ID()), zap.Error(err))
			if s.table.Disconnect(s.roomID, userID, c) {
				_ = c.Close(CloseDeliveryFailure, "delivery_failure")
			}
			continue
		}
		delivered++
	}
	for _, userID := range s.members {
		if _, ok := attached[userID]; ok {
			continue
		}
		if s.table.registry != nil && s.table.registry.Push(userID, frame) {
			delivered++
		}
	}
	return delivered
}

func (s *RoomSession) replyError(c Conn, err error) {
	logger.Info("[Room] frame rejected",
		zap.String("room", s.roomID), zap.Int64("user", c.UserID()), zap.Error(err))
	if sendErr := c.Send(BuildErrorFrame(err)); sendErr != nil {
		logger.Debug("[Room] error frame dropped", zap.String("conn", c.ID()), zap.Error(sendErr))
	}
}
