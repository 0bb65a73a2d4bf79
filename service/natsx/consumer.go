package natsx

import (
	"PPChat/logger"
	"PPChat/tools/errs"
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subscribe 同一 biz 重复订阅时替换旧订阅
func (c *NatsxClient) subscribe(biz string, h NatsxHandler) error {
	r, ok := c.route(biz)
	if !ok {
		return errs.New("route not found", "biz", biz).Wrap()
	}
	var (
		sub *nats.Subscription
		err error
	)
	switch r.Mode {
	case Core:
		sub, err = c.subscribeCore(r, h)
	case JetStreamPush:
		sub, err = c.subscribeJS(r, h)
	default:
		err = errs.New("mode not supported", "mode", int(r.Mode)).Wrap()
	}
	if err != nil {
		return errs.WrapMsg(err, "subscribe", "biz", biz, "subject", r.Subject)
	}

	c.mu.Lock()
	old := c.subs[biz]
	c.subs[biz] = sub
	c.mu.Unlock()
	if old != nil {
		_ = old.Unsubscribe()
	}
	logger.Info("[NATS] subscribed", zap.String("biz", biz), zap.String("subject", r.Subject),
		zap.String("queue", r.Queue), zap.String("durable", r.Durable))
	return nil
}

func (c *NatsxClient) subscribeCore(r NatsxRoute, h NatsxHandler) (*nats.Subscription, error) {
	cb := func(m *nats.Msg) {
		if err := h(context.Background(), toMessage(m)); err != nil {
			logger.Warn("[NATS] handle failed", zap.String("biz", r.Biz), zap.String("subject", m.Subject), zap.Error(err))
		}
	}
	var (
		sub *nats.Subscription
		err error
	)
	if r.Queue == "" {
		sub, err = c.nc.Subscribe(r.Subject, cb)
	} else {
		sub, err = c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
	}
	if err != nil {
		return nil, err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return sub, nil
}

// subscribeJS 处理成功 Ack；失败 Nak 重投，达到 MaxDeliver 后 Term
func (c *NatsxClient) subscribeJS(r NatsxRoute, h NatsxHandler) (*nats.Subscription, error) {
	if c.js == nil {
		return nil, errs.New("jetstream not initialized").Wrap()
	}
	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckWait(r.AckWait),
		nats.MaxAckPending(r.MaxAckPending),
		nats.DeliverNew(),
	}
	if r.Durable != "" {
		opts = append(opts, nats.Durable(r.Durable))
	}
	if r.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(r.MaxDeliver))
	}

	cb := func(m *nats.Msg) {
		msg := toMessage(m)
		err := h(context.Background(), msg)
		switch {
		case err == nil:
			_ = m.Ack()
		case r.MaxDeliver > 0 && msg.Delivered >= uint64(r.MaxDeliver):
			logger.Error("[NATS] handle failed, dropped", zap.String("biz", r.Biz), zap.String("subject", m.Subject),
				zap.Uint64("delivered", msg.Delivered), zap.Error(err))
			_ = m.Term()
		default:
			logger.Warn("[NATS] handle failed, nak", zap.String("biz", r.Biz), zap.String("subject", m.Subject),
				zap.Uint64("delivered", msg.Delivered), zap.Error(err))
			_ = m.Nak()
		}
	}
	if r.Queue == "" {
		return c.js.Subscribe(r.Subject, cb, opts...)
	}
	return c.js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
}
