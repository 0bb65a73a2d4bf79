package chat

import (
	"PPChat/logger"
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PresenceMirror 在线状态的外部镜像（Redis），失败只记日志
type PresenceMirror interface {
	Online(ctx context.Context, userID int64, connID string) error
	Offline(ctx context.Context, userID int64, connID string) error
	Refresh(ctx context.Context, userID int64, connID string) error
}

const mirrorTimeout = 2 * time.Second

// Registry 进程内 user -> presence 连接，每个用户最多一条
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]Conn
	mirror PresenceMirror
}

func NewRegistry(mirror PresenceMirror) *Registry {
	return &Registry{
		byUser: make(map[int64]Conn),
		mirror: mirror,
	}
}

// Register 后连接者覆盖，返回被顶替的连接（由调用方关闭）
func (r *Registry) Register(userID int64, c Conn) (previous Conn) {
	r.mu.Lock()
	previous = r.byUser[userID]
	r.byUser[userID] = c
	r.mu.Unlock()

	if previous == c {
		previous = nil
	}
	r.mirrorDo("online", userID, c.ID(), func(ctx context.Context) error {
		return r.mirror.Online(ctx, userID, c.ID())
	})
	return previous
}

// Unregister 无条件移除
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	c, ok := r.byUser[userID]
	delete(r.byUser, userID)
	r.mu.Unlock()

	if ok {
		r.mirrorDo("offline", userID, c.ID(), func(ctx context.Context) error {
			return r.mirror.Offline(ctx, userID, c.ID())
		})
	}
}

// UnregisterConn 仅当映射仍指向 c 时移除，旧连接清理不会误删新连接
func (r *Registry) UnregisterConn(userID int64, c Conn) bool {
	r.mu.Lock()
	cur, ok := r.byUser[userID]
	removed := ok && cur == c
	if removed {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if removed {
		r.mirrorDo("offline", userID, c.ID(), func(ctx context.Context) error {
			return r.mirror.Offline(ctx, userID, c.ID())
		})
	}
	return removed
}

func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Push 尽力投递；不在线直接丢弃。发送失败的连接被摘除并关闭
func (r *Registry) Push(userID int64, frame []byte) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	if err := c.Send(frame); err != nil {
		logger.Warn("[Registry] push failed, detach", zap.Int64("user", userID), zap.String("conn", c.ID()), zap.Error(err))
		if r.UnregisterConn(userID, c) {
			_ = c.Close(CloseDeliveryFailure, "delivery_failure")
		}
		return false
	}
	return true
}

// Heartbeat 续期外部镜像
func (r *Registry) Heartbeat(userID int64, c Conn) {
	if cur, ok := r.Lookup(userID); !ok || cur != c {
		return
	}
	r.mirrorDo("refresh", userID, c.ID(), func(ctx context.Context) error {
		return r.mirror.Refresh(ctx, userID, c.ID())
	})
}

// Online 过滤出在线用户
func (r *Registry) Online(userIDs []int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := r.byUser[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// UserIDs 升序
func (r *Registry) UserIDs() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CloseAll 停机时清空并关闭全部连接
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	conns := r.byUser
	r.byUser = make(map[int64]Conn)
	r.mu.Unlock()

	for userID, c := range conns {
		_ = c.Close(code, reason)
		r.mirrorDo("offline", userID, c.ID(), func(ctx context.Context) error {
			return r.mirror.Offline(ctx, userID, c.ID())
		})
	}
	return len(conns)
}

func (r *Registry) mirrorDo(op string, userID int64, connID string, f func(ctx context.Context) error) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := f(ctx); err != nil {
		logger.Warn("[Registry] presence mirror failed",
			zap.String("op", op), zap.Int64("user", userID), zap.String("conn", connID), zap.Error(err))
	}
}
