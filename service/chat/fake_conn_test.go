package chat

import (
	"PPChat/module/chat/message"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var fakeSeq atomic.Int64

// fakeConn 记录发送的帧与关闭码
type fakeConn struct {
	id     string
	userID int64

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	code     int
	reason   string
	failSend bool
	closeErr error
}

func newFakeConn(userID int64) *fakeConn {
	return &fakeConn{id: fmt.Sprintf("fake-%d", fakeSeq.Add(1)), userID: userID}
}

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return errs.ErrDeliveryFailure.WrapMsg("fake send failed", "conn", c.id)
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.code = code
		c.reason = reason
	}
	return c.closeErr
}

func (c *fakeConn) setFailSend(v bool) {
	c.mu.Lock()
	c.failSend = v
	c.mu.Unlock()
}

func (c *fakeConn) closeState() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}

// decoded 已发送帧解码后的列表
func (c *fakeConn) decoded(t *testing.T) []testFrame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]testFrame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f testFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range c.decoded(t) {
		out = append(out, f.Event)
	}
	return out
}

type testFrame struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	SenderUser *SenderUser     `json:"sender_user"`
}

func (f testFrame) messages(t *testing.T) []*chatmodel.Message {
	t.Helper()
	var out []*chatmodel.Message
	require.NoError(t, json.Unmarshal(f.Data, &out))
	return out
}

func (f testFrame) errorCode(t *testing.T) int {
	t.Helper()
	var d errorData
	require.NoError(t, json.Unmarshal(f.Data, &d))
	return d.Code
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu      sync.Mutex
	created []*chatmodel.Message
	status  [][]*chatmodel.Message
}

func (p *recordingPublisher) MessageCreated(_ context.Context, m *chatmodel.Message) {
	p.mu.Lock()
	p.created = append(p.created, m)
	p.mu.Unlock()
}

func (p *recordingPublisher) StatusChanged(_ context.Context, _ int64, msgs []*chatmodel.Message) {
	p.mu.Lock()
	p.status = append(p.status, msgs)
	p.mu.Unlock()
}

// flakyStore 可注入失败的存储
type flakyStore struct {
	*message.MemStore
	failSave bool
	roomHook func()
}

func (s *flakyStore) Save(ctx context.Context, m *chatmodel.Message) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.MemStore.Save(ctx, m)
}

func (s *flakyStore) Room(ctx context.Context, roomID string) (*chatmodel.ChatRoom, error) {
	if s.roomHook != nil {
		s.roomHook()
	}
	return s.MemStore.Room(ctx, roomID)
}

type fixture struct {
	store     *message.MemStore
	registry  *Registry
	publisher *recordingPublisher
	hub       *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := message.NewMemStore()
	registry := NewRegistry(nil)
	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		registry:  registry,
		publisher: pub,
		hub:       NewHub(store, registry, pub),
	}
}

func (f *fixture) room(typ chatmodel.RoomType, active bool, members ...int64) string {
	r := chatmodel.NewChatRoom(typ, active, members...)
	f.store.PutRoom(r)
	return r.ID.Hex()
}

func (f *fixture) connect(t *testing.T, roomID string, userID int64) (*RoomSession, *fakeConn) {
	t.Helper()
	c := newFakeConn(userID)
	s, err := f.hub.Sessions().Connect(context.Background(), roomID, c)
	require.NoError(t, err)
	return s, c
}

func newMessageFrame(roomID string, sender int64, text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event":        EventNewMessage,
		"room_id":      roomID,
		"message_text": text,
		"sender_user":  map[string]any{"id": sender, "username": fmt.Sprintf("u%d", sender)},
	})
	return b
}

func statusFrame(sender int64, status string, ids ...string) []byte {
	b, _ := json.Marshal(map[string]any{
		"event": EventChangeMessageStatus,
		"data": map[string]any{
			"message_id_list": ids,
			"status":          status,
		},
		"sender_user": map[string]any{"id": sender},
	})
	return b
}
