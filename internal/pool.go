package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chngzhen/log4g"
	"github.com/go-redis/redis/v8"
)

// PoolManager 持有进程内唯一的集群客户端。
type PoolManager struct {
	mu     sync.Mutex
	handle atomic.Pointer[redis.ClusterClient]
}

func NewPoolManager() *PoolManager {
	return &PoolManager{}
}

// Initialize 以默认连接池策略与重定向上限（5次）初始化集群客户端。timeout不大于0时取DefaultTimeout。
func (m *PoolManager) Initialize(ctx context.Context, hostList, password string, timeout time.Duration) error {
	nodes, err := ParseNodes(hostList)
	if err != nil {
		log4g.Error("Redis集群节点配置错误：%+v", err)
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return m.InitializeWith(ctx, &Property{
		Nodes:        nodes,
		Password:     password,
		Timeout:      timeout,
		MaxRedirects: DefaultRedirects,
		Pool:         DefaultPoolPolicy(),
	})
}

// InitializeWith 创建新的集群客户端并替换旧的。新客户端创建成功后才会替换，
// 旧客户端随后被关闭，关闭失败只记录日志。正在旧客户端上执行的命令不受影响。
func (m *PoolManager) InitializeWith(ctx context.Context, property *Property) error {
	if len(property.Nodes) == 0 {
		return &ConfigError{Entry: "nodes", Reason: "集群节点不能为空"}
	}
	if err := property.Pool.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := newClusterClient(ctx, property)
	if err != nil {
		log4g.Error("系统级严重错误，Redis集群客户端创建失败：%+v", err)
		return err
	}

	previous := m.handle.Swap(client)
	log4g.Info("Redis集群客户端创建成功：%v", addrs(property.Nodes))
	release(previous)
	return nil
}

// CurrentHandle 返回当前的集群客户端。未初始化时返回ErrNotInitialized。
func (m *PoolManager) CurrentHandle() (*redis.ClusterClient, error) {
	client := m.handle.Load()
	if client == nil {
		return nil, ErrNotInitialized
	}
	return client, nil
}

// Close 关闭当前的集群客户端，之后CurrentHandle返回ErrNotInitialized。
func (m *PoolManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client := m.handle.Swap(nil)
	if client == nil {
		return nil
	}
	return client.Close()
}

func newClusterClient(ctx context.Context, property *Property) (*redis.ClusterClient, error) {
	policy := property.Pool
	idleCheckFrequency, idleTimeout := policy.idleCheck()
	nodes := addrs(property.Nodes)
	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:              nodes,
		Password:           property.Password,
		MaxRedirects:       property.MaxRedirects,
		MaxRetries:         -1,
		DialTimeout:        property.Timeout,
		ReadTimeout:        property.Timeout,
		WriteTimeout:       property.Timeout,
		PoolSize:           policy.MaxIdle,
		MinIdleConns:       policy.MinIdle,
		PoolTimeout:        policy.poolTimeout(),
		IdleCheckFrequency: idleCheckFrequency,
		IdleTimeout:        idleTimeout,
		MaxConnAge:         policy.MaxConnAge,
	})

	// 检查各个节点的网络状况
	err := client.ForEachShard(ctx, func(ctx context.Context, shard *redis.Client) error {
		return shard.Ping(ctx).Err()
	})
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log4g.Error("Redis客户端关闭失败：%+v", closeErr)
		}
		return nil, &PoolInitError{Nodes: nodes, Err: err}
	}
	return client, nil
}

// release 尽力关闭被替换的客户端。
func release(client *redis.ClusterClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log4g.Error("Redis客户端关闭失败：%+v", err)
		return
	}
	log4g.Info("旧的Redis集群客户端已关闭")
}

func addrs(nodes []Node) []string {
	result := make([]string, len(nodes))
	for i, node := range nodes {
		result[i] = node.Addr()
	}
	return result
}
