package storage

import (
	"PPChat/tools/errs"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceConfig presence 镜像配置
type PresenceConfig struct {
	NodeID string        // 网关节点，写入 value
	TTL    time.Duration // 心跳续期；超时未续即视为离线
	Prefix string        // 默认 "im:presence:"
}

// ===== Lua 脚本 =====

// 上线：覆盖写入（后连接者生效），并登记到节点索引
// KEYS[1] = presence key
// KEYS[2] = node index key
// ARGV[1] = value (<node>|<conn>)
// ARGV[2] = ttl ms
// ARGV[3] = user id
const luaOnline = `
redis.call("SET", KEYS[1], ARGV[1], "PX", tonumber(ARGV[2]))
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

// 下线：仅当 value 仍是本连接时删除
// 返回：1=删除；0=已被其他连接覆盖或不存在
const luaOffline = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[2])
  return 1
end
return 0
`

// 续期：仅当 value 仍是本连接时
// KEYS[1] = presence key
// ARGV[1] = value
// ARGV[2] = ttl ms
const luaRefresh = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return 0
`

// 清理本节点登记的全部 presence（启动/停机）
// KEYS[1] = node index key
// ARGV[1] = key prefix
// ARGV[2] = value prefix (<node>|)
// 返回：删除数量
const luaClearNode = `
local users = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, u in ipairs(users) do
  local k = ARGV[1] .. u
  local v = redis.call("GET", k)
  if v and string.sub(v, 1, string.len(ARGV[2])) == ARGV[2] then
    redis.call("DEL", k)
    n = n + 1
  end
end
redis.call("DEL", KEYS[1])
return n
`

var (
	scriptOnline    = redis.NewScript(luaOnline)
	scriptOffline   = redis.NewScript(luaOffline)
	scriptRefresh   = redis.NewScript(luaRefresh)
	scriptClearNode = redis.NewScript(luaClearNode)
)

// RedisPresence 把进程内 presence 连接镜像为 im:presence:<user> -> <node>|<conn>，供其他服务查询在线状态
type RedisPresence struct {
	rdb redis.Scripter
	kv  redis.Cmdable
	cfg PresenceConfig
}

func NewRedisPresence(rdb redis.UniversalClient, cfg PresenceConfig) *RedisPresence {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "im:presence:"
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "gateway"
	}
	return &RedisPresence{rdb: rdb, kv: rdb, cfg: cfg}
}

func (p *RedisPresence) key(userID int64) string {
	return p.cfg.Prefix + strconv.FormatInt(userID, 10)
}

func (p *RedisPresence) nodeKey() string {
	return p.cfg.Prefix + "node:" + p.cfg.NodeID
}

func (p *RedisPresence) value(connID string) string {
	return p.cfg.NodeID + "|" + connID
}

// PresenceEntry 在线记录
type PresenceEntry struct {
	UserID int64
	NodeID string
	ConnID string
}

func parseEntry(userID int64, v string) (PresenceEntry, bool) {
	node, conn, ok := strings.Cut(v, "|")
	if !ok {
		return PresenceEntry{}, false
	}
	return PresenceEntry{UserID: userID, NodeID: node, ConnID: conn}, true
}

func (p *RedisPresence) Online(ctx context.Context, userID int64, connID string) error {
	uid := strconv.FormatInt(userID, 10)
	err := scriptOnline.Run(ctx, p.rdb,
		[]string{p.key(userID), p.nodeKey()},
		p.value(connID), p.cfg.TTL.Milliseconds(), uid,
	).Err()
	return errs.WrapMsg(err, "presence online", "user", userID)
}

func (p *RedisPresence) Offline(ctx context.Context, userID int64, connID string) error {
	uid := strconv.FormatInt(userID, 10)
	err := scriptOffline.Run(ctx, p.rdb,
		[]string{p.key(userID), p.nodeKey()},
		p.value(connID), uid,
	).Err()
	return errs.WrapMsg(err, "presence offline", "user", userID)
}

func (p *RedisPresence) Refresh(ctx context.Context, userID int64, connID string) error {
	err := scriptRefresh.Run(ctx, p.rdb,
		[]string{p.key(userID)},
		p.value(connID), p.cfg.TTL.Milliseconds(),
	).Err()
	return errs.WrapMsg(err, "presence refresh", "user", userID)
}

// Lookup 查询单个用户
func (p *RedisPresence) Lookup(ctx context.Context, userID int64) (PresenceEntry, bool, error) {
	v, err := p.kv.Get(ctx, p.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return PresenceEntry{}, false, nil
	}
	if err != nil {
		return PresenceEntry{}, false, errs.WrapMsg(err, "presence lookup", "user", userID)
	}
	e, ok := parseEntry(userID, v)
	return e, ok, nil
}

// OnlineUsers 过滤出在线用户（MGET 一次往返）
func (p *RedisPresence) OnlineUsers(ctx context.Context, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return []int64{}, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = p.key(id)
	}
	vals, err := p.kv.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence mget", "n", len(keys))
	}
	out := make([]int64, 0, len(userIDs))
	for i, v := range vals {
		if v != nil {
			out = append(out, userIDs[i])
		}
	}
	return out, nil
}

// ClearNode 删除本节点写入的全部记录，返回删除数量
func (p *RedisPresence) ClearNode(ctx context.Context) (int64, error) {
	n, err := scriptClearNode.Run(ctx, p.rdb,
		[]string{p.nodeKey()},
		p.cfg.Prefix, p.cfg.NodeID+"|",
	).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "presence clear node", "node", p.cfg.NodeID)
	}
	return n, nil
}
