package chat

import (
	"PPChat/logger"
	chatmodel "PPChat/module/chat/model"
	"PPChat/service/natsx"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventPublisher 持久化成功后的对外事件，尽力而为
type EventPublisher interface {
	MessageCreated(ctx context.Context, m *chatmodel.Message)
	StatusChanged(ctx context.Context, actor int64, msgs []*chatmodel.Message)
}

type nopPublisher struct{}

func (nopPublisher) MessageCreated(context.Context, *chatmodel.Message)          {}
func (nopPublisher) StatusChanged(context.Context, int64, []*chatmodel.Message) {}

// NATS biz 名
const (
	BizMessageCreated = "chat.message.created"
	BizMessageStatus  = "chat.message.status"
)

type MessageCreatedEvent struct {
	Message *chatmodel.Message `json:"message"`
	TS      int64              `json:"ts"`
}

type StatusChangedEvent struct {
	ActorID  int64                   `json:"actor_id"`
	Status   chatmodel.MessageStatus `json:"status"`
	Messages []*chatmodel.Message    `json:"messages"`
	TS       int64                   `json:"ts"`
}

// NatsPublisher 通过 natsx 发布；路由需提前注册
type NatsPublisher struct {
	mgr *natsx.NatsManager
}

func NewNatsPublisher(mgr *natsx.NatsManager) *NatsPublisher {
	return &NatsPublisher{mgr: mgr}
}

func (p *NatsPublisher) MessageCreated(ctx context.Context, m *chatmodel.Message) {
	p.publish(ctx, BizMessageCreated, "created:"+m.ID.Hex(), MessageCreatedEvent{Message: m, TS: time.Now().UnixMilli()})
}

func (p *NatsPublisher) StatusChanged(ctx context.Context, actor int64, msgs []*chatmodel.Message) {
	if len(msgs) == 0 {
		return
	}
	st := msgs[0].Status
	p.publish(ctx, BizMessageStatus, "", StatusChangedEvent{ActorID: actor, Status: st, Messages: msgs, TS: time.Now().UnixMilli()})
}

func (p *NatsPublisher) publish(ctx context.Context, biz, msgID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("[Events] marshal failed", zap.String("biz", biz), zap.Error(err))
		return
	}
	if err := p.mgr.PublishOnce(ctx, biz, data, map[string]string{"Content-Type": "application/json"}, msgID); err != nil {
		logger.Warn("[Events] publish failed", zap.String("biz", biz), zap.Error(err))
	}
}

// KafkaSender 由 service/kafka.Producer 实现
type KafkaSender interface {
	Send(key string, value []byte, headers map[string]string) error
}

// KafkaPublisher 以 room_id 为 key 写入事件流，同一房间的事件保持有序
type KafkaPublisher struct {
	sender KafkaSender
}

func NewKafkaPublisher(sender KafkaSender) *KafkaPublisher {
	return &KafkaPublisher{sender: sender}
}

func (p *KafkaPublisher) MessageCreated(_ context.Context, m *chatmodel.Message) {
	p.send(BizMessageCreated, m.RoomID, MessageCreatedEvent{Message: m, TS: time.Now().UnixMilli()})
}

func (p *KafkaPublisher) StatusChanged(_ context.Context, actor int64, msgs []*chatmodel.Message) {
	if len(msgs) == 0 {
		return
	}
	for roomID, group := range groupByRoom(msgs) {
		p.send(BizMessageStatus, roomID, StatusChangedEvent{
			ActorID:  actor,
			Status:   group[0].Status,
			Messages: group,
			TS:       time.Now().UnixMilli(),
		})
	}
}

func (p *KafkaPublisher) send(biz, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("[Events] marshal failed", zap.String("biz", biz), zap.Error(err))
		return
	}
	if err := p.sender.Send(key, data, map[string]string{"biz": biz, "Content-Type": "application/json"}); err != nil {
		logger.Warn("[Events] kafka send failed", zap.String("biz", biz), zap.String("key", key), zap.Error(err))
	}
}

func groupByRoom(msgs []*chatmodel.Message) map[string][]*chatmodel.Message {
	out := make(map[string][]*chatmodel.Message)
	for _, m := range msgs {
		out[m.RoomID] = append(out[m.RoomID], m)
	}
	return out
}

// Publishers 依次投递给多个出口
type Publishers []EventPublisher

func (ps Publishers) MessageCreated(ctx context.Context, m *chatmodel.Message) {
	for _, p := range ps {
		p.MessageCreated(ctx, m)
	}
}

func (ps Publishers) StatusChanged(ctx context.Context, actor int64, msgs []*chatmodel.Message) {
	for _, p := range ps {
		p.StatusChanged(ctx, actor, msgs)
	}
}
