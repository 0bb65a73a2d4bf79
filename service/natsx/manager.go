package natsx

import (
	"PPChat/tools/errs"
	"PPChat/tools/ids"
	"context"

	"github.com/nats-io/nats.go"
)

var errNotInit = errs.New("nats manager not initialized")

// NatsManager 对外门面：路由、发布、订阅
type NatsManager struct {
	client *NatsxClient
	mws    []NatsxMiddleware
}

// NewNatsManager middlewares 作用于之后的每个订阅
func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	return &NatsManager{client: c, mws: middlewares}, nil
}

func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if m == nil || m.client == nil {
		return errNotInit.Wrap()
	}
	return m.client.RegisterRoute(r)
}

// Publish 按 biz 路由发送
func (m *NatsManager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.client == nil {
		return errNotInit.Wrap()
	}
	r, ok := m.client.route(biz)
	if !ok {
		return errs.New("route not found", "biz", biz).Wrap()
	}
	switch r.Mode {
	case Core:
		return m.client.sendCore(r.Subject, data, hdr)
	case JetStreamPush:
		return m.client.sendJS(ctx, r.Subject, data, hdr)
	default:
		return errs.New("mode not supported", "mode", int(r.Mode)).Wrap()
	}
}

// PublishOnce 带 Nats-Msg-Id 发送，JetStream 在去重窗口内丢弃重复；msgID 为空时生成
func (m *NatsManager) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	h := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		h[k] = v
	}
	if msgID == "" {
		msgID = "ppchat-" + ids.GenerateString()
	}
	h[nats.MsgIdHdr] = msgID
	return m.Publish(ctx, biz, data, h)
}

// Subscribe 路由 Queue 为空时每个订阅者都收到（广播）
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if m == nil || m.client == nil {
		return errNotInit.Wrap()
	}
	return m.client.subscribe(biz, NatsxChain(h, m.mws...))
}
