package model

import (
	"sync"
	"time"

	"PPChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MessageTableName = "message"

	MessageFieldID        = "_id"
	MessageFieldRoomID    = "room_id"
	MessageFieldStatus    = "status"
	MessageFieldSeenBy    = "seen_by"
	MessageFieldCreatedAt = "created_at"
	// MessageFieldStatusRev 最近一次状态写入的批次号，只在存储层使用
	MessageFieldStatusRev = "status_rev"
)

// 消息类型
const (
	MessageTypeText     = "text"
	MessageTypeVideo    = "video"
	MessageTypeImage    = "image"
	MessageTypeDocument = "document"
	MessageTypeLinks    = "links"
)

var validMessageTypes = map[string]struct{}{
	MessageTypeText:     {},
	MessageTypeVideo:    {},
	MessageTypeImage:    {},
	MessageTypeDocument: {},
	MessageTypeLinks:    {},
}

// Message 聊天消息；状态变更原地修改，不重建
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID      string             `bson:"room_id" json:"room_id"`
	SenderID    int64              `bson:"sender_id" json:"sender_id"`
	MessageText string             `bson:"message_text,omitempty" json:"message_text,omitempty"`
	MessageType string             `bson:"message_type" json:"message_type"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"` // 单调递增，用于排序
	FileLinks   []string           `bson:"file_links,omitempty" json:"file_links,omitempty"`
	Status      MessageStatus      `bson:"status" json:"status"`
	SeenBy      []int64            `bson:"seen_by" json:"seen_by"`
}

func (m *Message) GetTableName() string {
	return MessageTableName
}

// NewMessage 新消息，状态为 sent
func NewMessage(roomID string, senderID int64, text, msgType string, fileLinks []string) (*Message, error) {
	if msgType == "" {
		msgType = MessageTypeText
	}
	if _, ok := validMessageTypes[msgType]; !ok {
		return nil, errs.ErrProtocol.WrapMsg("invalid message type", "message_type", msgType)
	}
	return &Message{
		ID:          primitive.NewObjectID(),
		RoomID:      roomID,
		SenderID:    senderID,
		MessageText: text,
		MessageType: msgType,
		CreatedAt:   MonotonicNow(),
		FileLinks:   fileLinks,
		Status:      StatusSent,
		SeenBy:      []int64{},
	}, nil
}

// HasSeen 用户是否已在 seen_by 中
func (m *Message) HasSeen(userID int64) bool {
	for _, u := range m.SeenBy {
		if u == userID {
			return true
		}
	}
	return false
}

// Clone 深拷贝
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.FileLinks != nil {
		c.FileLinks = append([]string(nil), m.FileLinks...)
	}
	c.SeenBy = append([]int64{}, m.SeenBy...)
	return &c
}

var (
	clockMu  sync.Mutex
	lastTick time.Time
)

// MonotonicNow 毫秒精度（与 Mongo 存储精度一致），进程内严格递增
func MonotonicNow() time.Time {
	clockMu.Lock()
	defer clockMu.Unlock()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(lastTick) {
		now = lastTick.Add(time.Millisecond)
	}
	lastTick = now
	return now
}
