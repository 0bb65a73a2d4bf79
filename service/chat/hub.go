package chat

import (
	"PPChat/logger"
	"PPChat/module/chat/message"
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Hub 进程内唯一的连接中枢：presence 注册表 + 房间会话表
type Hub struct {
	store     message.Store
	registry  *Registry
	sessions  *SessionTable
	publisher EventPublisher
}

func NewHub(store message.Store, registry *Registry, publisher EventPublisher) *Hub {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Hub{
		store:     store,
		registry:  registry,
		sessions:  NewSessionTable(store, registry, publisher),
		publisher: publisher,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Sessions() *SessionTable { return h.sessions }

func (h *Hub) NewPresence(c Conn) *PresenceSession {
	return NewPresenceSession(c, h.registry, h.store, h.publisher)
}

func (h *Hub) ForceClose(roomID string) bool { return h.sessions.ForceClose(roomID) }

func (h *Hub) IsSessionOpen(roomID string) bool { return h.sessions.IsSessionOpen(roomID) }

// DeactivateRoom 解除好友/拉黑：先置 is_active=false，再强制关闭会话
func (h *Hub) DeactivateRoom(ctx context.Context, roomID string) (closed bool, err error) {
	if err := h.store.SetActive(ctx, roomID, false); err != nil {
		return false, err
	}
	closed = h.sessions.ForceClose(roomID)
	logger.Info("[Hub] room deactivated", zap.String("room", roomID), zap.Bool("session_closed", closed))
	return closed, nil
}

// ActivateRoom 只改状态，不创建会话
func (h *Hub) ActivateRoom(ctx context.Context, roomID string) error {
	if err := h.store.SetActive(ctx, roomID, true); err != nil {
		return err
	}
	logger.Info("[Hub] room activated", zap.String("room", roomID))
	return nil
}

// PushNotification 不在线即丢弃
func (h *Hub) PushNotification(userID int64, notification json.RawMessage, sender *SenderUser) bool {
	ok := h.registry.Push(userID, BuildNotificationFrame(notification, sender))
	if !ok {
		logger.Debug("[Hub] notification dropped, user offline", zap.Int64("user", userID))
	}
	return ok
}

// Connections room_id -> 已挂接用户
func (h *Hub) Connections() map[string][]int64 { return h.sessions.Snapshot() }

// Shutdown 以 1001 关闭全部连接
func (h *Hub) Shutdown() {
	rooms := h.sessions.CloseAll(CloseGoingAway, "server_shutdown")
	presence := h.registry.CloseAll(CloseGoingAway, "server_shutdown")
	logger.Info("[Hub] shutdown", zap.Int("room_conns", rooms), zap.Int("presence_conns", presence))
}
