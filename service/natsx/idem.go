package natsx

import (
	"PPChat/logger"
	"PPChat/tools/safe"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ----- 抽象存储 -----
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type memIdem struct {
	mu        sync.Mutex
	m         map[string]int64 // key -> expire unix ms
	ttl       time.Duration
	lastSweep int64
	now       func() time.Time
}

func NewMemIdem(defaultTTL time.Duration) IdemStore {
	return &memIdem{m: make(map[string]int64), ttl: defaultTTL, now: time.Now}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now().UnixMilli()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.sweep(now)
	if exp, ok := mi.m[key]; ok && exp > now {
		return true, nil // 已见过
	}
	mi.m[key] = now + ttl.Milliseconds()
	return false, nil
}

// sweep 每分钟最多清理一次过期 key
func (mi *memIdem) sweep(now int64) {
	if now-mi.lastSweep < time.Minute.Milliseconds() {
		return
	}
	mi.lastSweep = now
	for k, exp := range mi.m {
		if exp <= now {
			delete(mi.m, k)
		}
	}
}

// NatsxIdemMiddleware 按 MsgID 丢弃重投；无 MsgID 的消息原样放行
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msg.MsgID()
			if id == "" {
				return next(ctx, msg)
			}
			seen, err := store.SeenOnce(msg.Subject+"|"+id, ttl)
			if err != nil {
				logger.Warn("[NATS] idem store failed", zap.String("subject", msg.Subject), zap.Error(err))
			}
			if seen {
				logger.Debug("[NATS] duplicate skipped", zap.String("subject", msg.Subject), zap.String("id", id))
				return nil
			}
			return next(ctx, msg)
		}
	}
}

// NatsxRecoverMiddleware 回调 panic 不影响订阅
func NatsxRecoverMiddleware() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer safe.Recover("natsx:"+msg.Subject, func(e error) { err = e })
			return next(ctx, msg)
		}
	}
}
