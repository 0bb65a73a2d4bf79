package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ChatRoomTableName = "chat_room"

	ChatRoomFieldID       = "_id"
	ChatRoomFieldIsActive = "is_active"
)

// RoomType 房间类型
type RoomType string

const (
	RoomTypeFriend RoomType = "friend" // 单聊
	RoomTypeGroup  RoomType = "group"
)

// RoomUser 房间成员，创建房间时确定
type RoomUser struct {
	UserID   int64     `bson:"user_id" json:"user_id"`
	AddedBy  *int64    `bson:"added_by,omitempty" json:"added_by,omitempty"`
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
	IsAdmin  bool      `bson:"isAdmin" json:"isAdmin"`
}

// ChatRoom 房间；本服务只读成员、读写 is_active
type ChatRoom struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Users     []RoomUser         `bson:"users" json:"users"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	Type      RoomType           `bson:"type" json:"type"`
	CreatedBy *int64             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
}

func (r *ChatRoom) GetTableName() string {
	return ChatRoomTableName
}

// MemberIDs 去重后的成员 id
func (r *ChatRoom) MemberIDs() []int64 {
	seen := make(map[int64]struct{}, len(r.Users))
	out := make([]int64, 0, len(r.Users))
	for _, u := range r.Users {
		if _, ok := seen[u.UserID]; ok {
			continue
		}
		seen[u.UserID] = struct{}{}
		out = append(out, u.UserID)
	}
	return out
}

func (r *ChatRoom) IsMember(userID int64) bool {
	for _, u := range r.Users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// NewChatRoom 构造房间（联调/测试用，正式创建在社交服务）
func NewChatRoom(typ RoomType, active bool, members ...int64) *ChatRoom {
	now := time.Now().UTC()
	users := make([]RoomUser, 0, len(members))
	for _, m := range members {
		users = append(users, RoomUser{UserID: m, JoinedAt: now})
	}
	return &ChatRoom{
		ID:        primitive.NewObjectID(),
		Users:     users,
		CreatedAt: now,
		Type:      typ,
		IsActive:  active,
	}
}
