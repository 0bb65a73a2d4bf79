package message

import (
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore 进程内实现，storage driver = memory 以及单测使用
type MemStore struct {
	mu    sync.RWMutex
	msgs  map[primitive.ObjectID]*chatmodel.Message
	rooms map[string]*chatmodel.ChatRoom // hex id -> room
}

func NewMemStore() *MemStore {
	return &MemStore{
		msgs:  make(map[primitive.ObjectID]*chatmodel.Message),
		rooms: make(map[string]*chatmodel.ChatRoom),
	}
}

// PutRoom 写入/覆盖房间
func (s *MemStore) PutRoom(r *chatmodel.ChatRoom) {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	cp := *r
	cp.Users = append([]chatmodel.RoomUser(nil), r.Users...)
	s.mu.Lock()
	s.rooms[r.ID.Hex()] = &cp
	s.mu.Unlock()
}

func (s *MemStore) Room(_ context.Context, roomID string) (*chatmodel.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, errs.ErrRoomNotFound.WrapMsg("room not found", "room_id", roomID)
	}
	cp := *r
	cp.Users = append([]chatmodel.RoomUser(nil), r.Users...)
	return &cp, nil
}

func (s *MemStore) SetActive(_ context.Context, roomID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return errs.ErrRoomNotFound.WrapMsg("room not found", "room_id", roomID)
	}
	r.IsActive = active
	return nil
}

func (s *MemStore) Save(_ context.Context, m *chatmodel.Message) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = chatmodel.MonotonicNow()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[m.ID]; ok {
		return errs.New("duplicate message id", "id", m.ID.Hex()).Wrap()
	}
	s.msgs[m.ID] = m.Clone()
	return nil
}

func (s *MemStore) FindByIDs(_ context.Context, ids []string) ([]*chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chatmodel.Message, 0, len(ids))
	for _, oid := range objectIDs(ids) {
		if m, ok := s.msgs[oid]; ok {
			out = append(out, m.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) BulkUpdateStatus(_ context.Context, msgs []*chatmodel.Message) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := make([]primitive.ObjectID, 0, len(msgs))
	for _, m := range msgs {
		cur, ok := s.msgs[m.ID]
		if !ok || !cur.Status.Before(m.Status) {
			continue
		}
		cur.Status = m.Status
		for _, u := range m.SeenBy {
			if !cur.HasSeen(u) {
				cur.SeenBy = append(cur.SeenBy, u)
			}
		}
		applied = append(applied, m.ID)
	}
	return applied, nil
}

// Get 单条读取（测试断言用）
func (s *MemStore) Get(id string) (*chatmodel.Message, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[oid]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// objectIDs 非法 hex 忽略
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		out = append(out, oid)
	}
	return out
}
