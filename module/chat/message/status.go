package message

import (
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusUpdate 一次状态推进请求
type StatusUpdate struct {
	MessageIDs []string
	Target     chatmodel.MessageStatus
	Actor      int64
	// RoomID 非空时只处理该房间的消息
	RoomID string
	// Rooms 非空时按消息所在房间校验 Actor 的成员身份
	Rooms RoomMembership
}

// CanAdvance 当前状态严格落后于目标，且操作者不是发送者（delivered 除外）
func CanAdvance(m *chatmodel.Message, target chatmodel.MessageStatus, actor int64) bool {
	if !m.Status.Before(target) {
		return false
	}
	return m.SenderID != actor || target == chatmodel.StatusDelivered
}

// ApplyStatus 原地推进，返回实际变化的消息
func ApplyStatus(msgs []*chatmodel.Message, target chatmodel.MessageStatus, actor int64) []*chatmodel.Message {
	changed := make([]*chatmodel.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || !CanAdvance(m, target, actor) {
			continue
		}
		m.Status = target
		if target == chatmodel.StatusSeen && !m.HasSeen(actor) {
			m.SeenBy = append(m.SeenBy, actor)
		}
		changed = append(changed, m)
	}
	return changed
}

// AdvanceStatus 查询 -> 推进 -> 批量写回；只返回变化的子集
func AdvanceStatus(ctx context.Context, store MessageStore, req StatusUpdate) ([]*chatmodel.Message, error) {
	if !req.Target.Valid() {
		return nil, errs.ErrProtocol.WrapMsg("invalid message status", "status", string(req.Target))
	}
	ids := dedupe(req.MessageIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	msgs, err := store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("find messages", "err", err)
	}
	msgs, err = scope(ctx, msgs, req)
	if err != nil {
		return nil, err
	}
	changed := ApplyStatus(msgs, req.Target, req.Actor)
	if len(changed) == 0 {
		return nil, nil
	}
	applied, err := store.BulkUpdateStatus(ctx, changed)
	if err != nil {
		return nil, errs.ErrPersistenceFailure.WrapMsg("bulk update status", "err", err)
	}
	// 并发推进时被其他批次抢先的消息不算本次变化
	set := make(map[primitive.ObjectID]struct{}, len(applied))
	for _, id := range applied {
		set[id] = struct{}{}
	}
	out := changed[:0]
	for _, m := range changed {
		if _, ok := set[m.ID]; ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// scope 去掉其他房间的消息，以及 Actor 不是成员的房间里的消息
func scope(ctx context.Context, msgs []*chatmodel.Message, req StatusUpdate) ([]*chatmodel.Message, error) {
	member := make(map[string]bool)
	out := make([]*chatmodel.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if req.RoomID != "" && m.RoomID != req.RoomID {
			continue
		}
		if req.Rooms != nil {
			ok, seen := member[m.RoomID]
			if !seen {
				room, err := req.Rooms.Room(ctx, m.RoomID)
				switch {
				case err == nil:
					ok = room.IsMember(req.Actor)
				case errs.ErrRoomNotFound.Is(err):
					ok = false
				default:
					return nil, errs.ErrPersistenceFailure.WrapMsg("load room", "room_id", m.RoomID, "err", err)
				}
				member[m.RoomID] = ok
			}
			if !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
