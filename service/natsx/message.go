package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NatsxMessage 收到的一条消息
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
	// JetStream 投递次数；Core 恒为 1
	Delivered uint64
}

// MsgID 发布端设置的去重 ID，没有则为空
func (m NatsxMessage) MsgID() string {
	for _, k := range []string{nats.MsgIdHdr, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := m.Header[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 按注册顺序由外到内包裹
type NatsxMiddleware func(NatsxHandler) NatsxHandler

func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func toMessage(m *nats.Msg) NatsxMessage {
	msg := NatsxMessage{
		Subject:   m.Subject,
		Data:      append([]byte(nil), m.Data...),
		Header:    headerToMap(m.Header),
		Delivered: 1,
	}
	if md, err := m.Metadata(); err == nil {
		msg.Delivered = md.NumDelivered
	}
	return msg
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
