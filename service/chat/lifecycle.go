package chat

import (
	"PPChat/logger"
	"PPChat/service/natsx"
	"PPChat/tools/decode"
	"PPChat/tools/errs"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// CRUD 服务发出的房间生命周期事件
const (
	BizRoomDeactivated = "social.room.deactivated"
	BizRoomActivated   = "social.room.activated"
	BizNotification    = "social.notification"
)

type RoomEvent struct {
	RoomID string `json:"room_id"`
}

// LifecycleConsumer NATS 事件 -> Hub
type LifecycleConsumer struct {
	hub *Hub
}

func NewLifecycleConsumer(hub *Hub) *LifecycleConsumer {
	return &LifecycleConsumer{hub: hub}
}

// Subscribe 路由需先通过 RegisterRoute 注册
func (l *LifecycleConsumer) Subscribe(mgr *natsx.NatsManager) error {
	subs := []struct {
		biz string
		h   natsx.NatsxHandler
	}{
		{BizRoomDeactivated, l.OnRoomDeactivated},
		{BizRoomActivated, l.OnRoomActivated},
		{BizNotification, l.OnNotification},
	}
	for _, s := range subs {
		if err := mgr.Subscribe(s.biz, s.h); err != nil {
			return errs.WrapMsg(err, "subscribe", "biz", s.biz)
		}
	}
	return nil
}

// OnRoomDeactivated 房间不存在时仍关闭本地会话
func (l *LifecycleConsumer) OnRoomDeactivated(ctx context.Context, msg natsx.NatsxMessage) error {
	ev, err := parseRoomEvent(msg.Data)
	if err != nil {
		logger.Warn("[Lifecycle] bad room event", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	closed, err := l.hub.DeactivateRoom(ctx, ev.RoomID)
	if errs.ErrRoomNotFound.Is(err) {
		closed, err = l.hub.ForceClose(ev.RoomID), nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Lifecycle] room deactivated", zap.String("room", ev.RoomID), zap.Bool("session_closed", closed))
	return nil
}

func (l *LifecycleConsumer) OnRoomActivated(ctx context.Context, msg natsx.NatsxMessage) error {
	ev, err := parseRoomEvent(msg.Data)
	if err != nil {
		logger.Warn("[Lifecycle] bad room event", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	err = l.hub.ActivateRoom(ctx, ev.RoomID)
	if errs.ErrRoomNotFound.Is(err) {
		logger.Info("[Lifecycle] activate unknown room", zap.String("room", ev.RoomID))
		return nil
	}
	return err
}

func (l *LifecycleConsumer) OnNotification(_ context.Context, msg natsx.NatsxMessage) error {
	var req NotificationRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.Warn("[Lifecycle] bad notification", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	if err := req.validate(); err != nil {
		logger.Warn("[Lifecycle] bad notification", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	l.hub.PushNotification(req.UserID, req.Notification, req.SenderUser)
	return nil
}

func parseRoomEvent(data []byte) (*RoomEvent, error) {
	m, err := decode.JSONObject(data)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("malformed room event", "err", err)
	}
	ev, err := decode.Map[RoomEvent](m)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("invalid room event", "err", err)
	}
	if ev.RoomID == "" {
		return nil, errs.ErrProtocol.WrapMsg("missing room_id")
	}
	return ev, nil
}

// NatsSubjects biz 对应的 subject
type NatsSubjects struct {
	MessageCreated  string
	MessageStatus   string
	RoomDeactivated string
	RoomActivated   string
	Notification    string
	// Durable JetStream durable 前缀，实际名称带上 NodeID
	Durable string
	NodeID  string
	Mode    natsx.NatsxMode
}

// 生命周期事件要到达每个持有连接的节点，不使用队列组
const lifecycleMaxDeliver = 5

// RegisterNatsRoutes 注册本服务用到的全部 biz 路由
func RegisterNatsRoutes(mgr *natsx.NatsManager, s NatsSubjects) error {
	routes := []natsx.NatsxRoute{
		{Biz: BizMessageCreated, Subject: s.MessageCreated, Mode: s.Mode},
		{Biz: BizMessageStatus, Subject: s.MessageStatus, Mode: s.Mode},
		{Biz: BizRoomDeactivated, Subject: s.RoomDeactivated, Mode: s.Mode, Durable: durable(s, "deactivated"), MaxDeliver: lifecycleMaxDeliver},
		{Biz: BizRoomActivated, Subject: s.RoomActivated, Mode: s.Mode, Durable: durable(s, "activated"), MaxDeliver: lifecycleMaxDeliver},
		{Biz: BizNotification, Subject: s.Notification, Mode: s.Mode, Durable: durable(s, "notification"), MaxDeliver: lifecycleMaxDeliver},
	}
	for _, r := range routes {
		if err := mgr.RegisterRoute(r); err != nil {
			return errs.WrapMsg(err, "register route", "biz", r.Biz, "subject", r.Subject)
		}
	}
	return nil
}

// durable 名不能含 '.'，节点 ID 中的 '.' 替换为 '_'
func durable(s NatsSubjects, name string) string {
	if s.Mode != natsx.JetStreamPush || s.Durable == "" {
		return ""
	}
	parts := []string{s.Durable}
	if s.NodeID != "" {
		parts = append(parts, strings.ReplaceAll(s.NodeID, ".", "_"))
	}
	return strings.Join(append(parts, name), "_")
}
