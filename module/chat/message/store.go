package message

import (
	chatmodel "PPChat/module/chat/model"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageStore 消息持久化
type MessageStore interface {
	// Save 写入新消息；ID 为空时由存储分配
	Save(ctx context.Context, m *chatmodel.Message) error
	// FindByIDs 非法或不存在的 id 直接忽略，结果按 created_at 升序
	FindByIDs(ctx context.Context, ids []string) ([]*chatmodel.Message, error)
	// BulkUpdateStatus 一次批量写入 status / seen_by，只推进仍落后的消息；
	// 返回实际写入的 id
	BulkUpdateStatus(ctx context.Context, msgs []*chatmodel.Message) ([]primitive.ObjectID, error)
}

// RoomMembership 房间成员与激活状态，房间不存在返回 errs.ErrRoomNotFound
type RoomMembership interface {
	Room(ctx context.Context, roomID string) (*chatmodel.ChatRoom, error)
	SetActive(ctx context.Context, roomID string, active bool) error
}

type Store interface {
	MessageStore
	RoomMembership
}
