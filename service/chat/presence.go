package chat

import (
	"PPChat/logger"
	"PPChat/module/chat/message"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"context"

	"go.uber.org/zap"
)

// PresenceSession 一条 presence 连接：用于接收通知与离房状态回执
type PresenceSession struct {
	conn      Conn
	registry  *Registry
	store     message.Store
	publisher EventPublisher
}

func NewPresenceSession(conn Conn, registry *Registry, store message.Store, publisher EventPublisher) *PresenceSession {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PresenceSession{conn: conn, registry: registry, store: store, publisher: publisher}
}

// Connect 登记到 Registry，顶替并关闭该用户旧的 presence 连接
func (p *PresenceSession) Connect() {
	prev := p.registry.Register(p.conn.UserID(), p.conn)
	closeReplaced(prev)
}

func (p *PresenceSession) Disconnect() bool {
	return p.registry.UnregisterConn(p.conn.UserID(), p.conn)
}

// HandleFrame 只接受 change_message_status；状态变化推送给各自的发送者
func (p *PresenceSession) HandleFrame(ctx context.Context, raw []byte) error {
	err := p.handle(ctx, raw)
	if err != nil {
		logger.Info("[Presence] frame rejected", zap.Int64("user", p.conn.UserID()), zap.Error(err))
		if sendErr := p.conn.Send(BuildErrorFrame(err)); sendErr != nil {
			logger.Debug("[Presence] error frame dropped", zap.String("conn", p.conn.ID()), zap.Error(sendErr))
		}
	}
	return err
}

func (p *PresenceSession) handle(ctx context.Context, raw []byte) error {
	frame, err := ParseFrame(raw)
	if err != nil {
		return err
	}
	f, ok := frame.(*StatusUpdateFrame)
	if !ok {
		return errs.ErrProtocol.WrapMsg("event not accepted on presence socket", "event", frame.Event())
	}
	actor := p.conn.UserID()
	if su := f.SenderUser; su != nil && su.ID != 0 && su.ID != actor {
		return errs.ErrProtocol.WrapMsg("sender_user does not match connection", "sender", su.ID)
	}

	changed, err := message.AdvanceStatus(ctx, p.store, message.StatusUpdate{
		MessageIDs: f.MessageIDs,
		Target:     f.Status,
		Actor:      actor,
		Rooms:      p.store,
	})
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	for _, group := range groupBySender(changed) {
		p.registry.Push(group[0].SenderID, BuildMessagesFrame(EventChangeMessageStatus, group, f.SenderUser))
	}
	p.publisher.StatusChanged(ctx, actor, changed)
	return nil
}

// groupBySender 按发送者分组，保持首次出现顺序
func groupBySender(msgs []*chatmodel.Message) [][]*chatmodel.Message {
	idx := make(map[int64]int)
	var out [][]*chatmodel.Message
	for _, m := range msgs {
		i, ok := idx[m.SenderID]
		if !ok {
			i = len(out)
			idx[m.SenderID] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], m)
	}
	return out
}
