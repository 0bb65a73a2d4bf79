package mgo

import (
	mgo "PPChat/data/database/mgo/mongoutil"
	"PPChat/logger"
	"PPChat/tools/errs"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// MongoManager 持有消息库连接，掉线后自动重连
type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once
	onStatus  func(up bool)

	lastErr atomic.Value // error
}

var globalMgr = newManager()

func newManager() *MongoManager {
	return &MongoManager{readyCh: make(chan struct{})}
}

func Manager() *MongoManager {
	return globalMgr
}

// StartAsync 一直运行到 ctx.Done()；首次连上时 close readyCh，掉线后自动重连
func StartAsync(ctx context.Context, cfg *mgo.Config) {
	go globalMgr.run(ctx, cfg)
}

func (m *MongoManager) run(ctx context.Context, cfg *mgo.Config) {
	for {
		if !m.connect(ctx, cfg) {
			return
		}
		if !m.watch(ctx) {
			return
		}
		logger.Warn("[Mongo] connection lost, reconnecting", zap.Error(m.Err()))
	}
}

// connect 退避重试直到成功；ctx 结束返回 false
func (m *MongoManager) connect(ctx context.Context, cfg *mgo.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mgo.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			fn := m.onStatus
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			if fn != nil {
				fn(true)
			}
			logger.Info("[Mongo] connected", zap.String("db", cfg.Database))
			return true
		}
		m.lastErr.Store(err)
		logger.Warn("[Mongo] connect failed", zap.Int("attempt", attempt), zap.Error(err))

		// 退避 + 抖动
		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1)) // 0~20%
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// watch 健康检查；连续失败返回 true 触发重连，ctx 结束返回 false
func (m *MongoManager) watch(ctx context.Context) bool {
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err == nil {
				fail = 0
				continue
			}
			fail++
			m.lastErr.Store(err)
			if fail >= failThresh {
				m.drop()
				return true
			}
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	c, fn := m.client, m.onStatus
	m.client = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.Disconnect(context.Background())
	if fn != nil {
		fn(false)
	}
}

// OnStatus 连接建立或断开时回调，用于健康检查
func (m *MongoManager) OnStatus(fn func(up bool)) {
	m.mu.Lock()
	m.onStatus = fn
	up := m.client != nil
	m.mu.Unlock()
	if up {
		fn(true)
	}
}

// Err 最近一次错误
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func Err() error { return globalMgr.Err() }

// TryGetDB 重连期间返回 false
func TryGetDB() (*mongo.Database, bool) { return globalMgr.TryGetDB() }

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.DB(), true
}

// WaitReady 已就绪立即返回
func WaitReady(ctx context.Context, m *MongoManager) error {
	if m == nil {
		return errs.New("mongo manager not started").Wrap()
	}
	m.mu.RLock()
	ready := m.client != nil
	m.mu.RUnlock()
	if ready {
		return nil
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
