package redis

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

// Shards 按玩家分片的一组 Redis 客户端
// 同一玩家的所有键（包括玩家锁）始终落在同一分片上。
type Shards struct {
	clients []*Client
}

// NewShards 为配置中的每个地址创建客户端；任一失败则关闭已建立的连接并返回错误
func NewShards(cfg cfgpkg.RedisConfig) (*Shards, error) {
	addrs := cfg.Addrs()
	if len(addrs) == 0 || addrs[0] == "" {
		return nil, errors.New("redis: no address configured")
	}
	s := &Shards{}
	for _, addr := range addrs {
		c, err := NewClient(cfg, addr)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.clients = append(s.clients, c)
	}
	return s, nil
}

// NewShardsFromClients 使用已有客户端构建分片（测试与嵌入场景）
func NewShardsFromClients(clients ...*Client) *Shards {
	return &Shards{clients: clients}
}

// Len 分片数
func (s *Shards) Len() int { return len(s.clients) }

// Clients 全部分片客户端
func (s *Shards) Clients() []*Client { return s.clients }

// ForPlayer 选取玩家所在分片
func (s *Shards) ForPlayer(playerID int64) *Client {
	return s.clients[shardOf(playerID, len(s.clients))]
}

// shardOf 按 ID 绝对值取模；在 uint64 上计算，math.MinInt64 不会溢出
func shardOf(id int64, n int) int {
	u := uint64(id)
	if id < 0 {
		u = uint64(-(id + 1)) + 1
	}
	return int(u % uint64(n))
}

// ShardIndex 计算键所在分片下标
// 形如 "player:42" 的键按末段数字取模，与 ForPlayer 一致；其余键按 FNV 哈希。
func (s *Shards) ShardIndex(key string) int {
	n := len(s.clients)
	if n == 1 {
		return 0
	}
	tail := key
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		tail = key[i+1:]
	}
	if id, err := strconv.ParseInt(tail, 10, 64); err == nil {
		return shardOf(id, n)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Pick 返回键所在分片的底层客户端
func (s *Shards) Pick(key string) *redis.Client {
	return s.clients[s.ShardIndex(key)].Client
}

// Close 关闭全部分片
func (s *Shards) Close() error {
	var errs []error
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.Addr(), err))
		}
	}
	return errors.Join(errs...)
}
