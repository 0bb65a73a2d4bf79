package chat

import (
	"PPChat/logger"
	"PPChat/module/chat/message"
	"PPChat/tools/errs"
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// roomGate 房间成员查询期间的停用纪元；查询返回后纪元变化说明房间已被强制关闭
type roomGate struct {
	pending int
	epoch   uint64
}

// SessionTable room_id -> RoomSession；加锁顺序 table -> session，锁内无 I/O
type SessionTable struct {
	mu       sync.Mutex
	sessions map[string]*RoomSession
	gates    map[string]*roomGate

	store     message.Store
	registry  *Registry
	publisher EventPublisher
}

func NewSessionTable(store message.Store, registry *Registry, publisher EventPublisher) *SessionTable {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &SessionTable{
		sessions:  make(map[string]*RoomSession),
		gates:     make(map[string]*roomGate),
		store:     store,
		registry:  registry,
		publisher: publisher,
	}
}

// Connect 挂接已鉴权连接；无会话时查询房间并惰性创建
func (t *SessionTable) Connect(ctx context.Context, roomID string, c Conn) (*RoomSession, error) {
	userID := c.UserID()

	t.mu.Lock()
	if s, ok := t.sessions[roomID]; ok {
		prev, err := s.attach(userID, c)
		t.mu.Unlock()
		if err != nil {
			return nil, err
		}
		closeReplaced(prev)
		return s, nil
	}
	g := t.gates[roomID]
	if g == nil {
		g = &roomGate{}
		t.gates[roomID] = g
	}
	g.pending++
	epoch := g.epoch
	t.mu.Unlock()

	room, err := t.store.Room(ctx, roomID)

	t.mu.Lock()
	stale := g.epoch != epoch
	g.pending--
	if g.pending == 0 {
		delete(t.gates, roomID)
	}
	if err != nil {
		t.mu.Unlock()
		if _, ok := errs.AsCode(err); !ok {
			err = errs.ErrPersistenceFailure.WrapMsg("room lookup", "room_id", roomID, "err", err)
		}
		return nil, err
	}
	if !room.IsActive || stale {
		t.mu.Unlock()
		return nil, errs.ErrRoomInactive.WrapMsg("room inactive", "room_id", roomID)
	}
	if !room.IsMember(userID) {
		t.mu.Unlock()
		return nil, errs.ErrForbidden.WrapMsg("not a room member", "room_id", roomID, "user", userID)
	}

	// 查询期间可能已有其他连接建好会话
	s, ok := t.sessions[roomID]
	if !ok {
		s = newRoomSession(roomID, room, t)
		t.sessions[roomID] = s
		logger.Debug("[Room] session opened", zap.String("room", roomID))
	}
	prev, err := s.attach(userID, c)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	closeReplaced(prev)
	return s, nil
}

// Disconnect 仅当会话中仍是该连接时摘除；最后一人离开则关闭会话
func (t *SessionTable) Disconnect(roomID string, userID int64, c Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[roomID]
	if !ok {
		return false
	}
	removed, empty := s.detach(userID, c)
	if empty {
		delete(t.sessions, roomID)
		logger.Debug("[Room] session closed", zap.String("room", roomID))
	}
	return removed
}

// ForceClose 关闭全部连接并移除会话，单个连接关闭失败不影响结果
func (t *SessionTable) ForceClose(roomID string) bool {
	t.mu.Lock()
	if g := t.gates[roomID]; g != nil {
		g.epoch++
	}
	s, ok := t.sessions[roomID]
	var conns []Conn
	if ok {
		delete(t.sessions, roomID)
		conns = s.closeAll()
	}
	t.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(CloseRoomDeactivated, "room_deactivated"); err != nil {
			logger.Warn("[Room] force close conn failed", zap.String("room", roomID), zap.String("conn", c.ID()), zap.Error(err))
		}
	}
	if ok {
		logger.Info("[Room] session force closed", zap.String("room", roomID), zap.Int("conns", len(conns)))
	}
	return ok
}

func (t *SessionTable) IsSessionOpen(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[roomID]
	return ok
}

func (t *SessionTable) Session(roomID string) (*RoomSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[roomID]
	return s, ok
}

func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot room_id -> 已挂接用户（升序）
func (t *SessionTable) Snapshot() map[string][]int64 {
	t.mu.Lock()
	sessions := make([]*RoomSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	out := make(map[string][]int64, len(sessions))
	for _, s := range sessions {
		out[s.roomID] = s.ConnectedUsers()
	}
	return out
}

// CloseAll 停机
func (t *SessionTable) CloseAll(code int, reason string) int {
	t.mu.Lock()
	var conns []Conn
	for roomID, s := range t.sessions {
		conns = append(conns, s.closeAll()...)
		delete(t.sessions, roomID)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(code, reason)
	}
	return len(conns)
}

func closeReplaced(prev Conn) {
	if prev == nil {
		return
	}
	_ = prev.Close(CloseReplaced, "replaced")
}

func sortedIDs(m map[int64]Conn) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
