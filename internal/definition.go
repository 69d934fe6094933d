package internal

import (
	"math"
	"time"
)

const (
	// DefaultRedirects 单条命令跟随集群拓扑重定向（MOVED/ASK）的最大次数。
	DefaultRedirects = 5
	// DefaultTimeout 未配置超时时的连接/读写超时时长。
	DefaultTimeout = 10000 * time.Millisecond
	// DefaultBlockingWait 阻塞式右出队的最长等待时间。
	DefaultBlockingWait = 60 * time.Second

	// waitForever 连接池耗尽时无限期等待。
	waitForever = time.Duration(math.MaxInt64)
)

// Node 集群节点地址。
type Node struct {
	Host string
	Port int
}

// Property 集群客户端的构建参数。
type Property struct {
	Nodes        []Node
	Password     string
	Timeout      time.Duration
	MaxRedirects int
	Pool         PoolPolicy
}

// PoolPolicy 每个集群节点的连接池策略。
type PoolPolicy struct {
	// 最大连接数，同时也是允许空闲的最大连接数。
	MaxIdle int `yaml:"max-idle"`
	// 预热并保持空闲的连接数量。不得大于MaxIdle。
	MinIdle int `yaml:"min-idle"`
	// 连接耗尽时是否阻塞等待。为false则立即失败。
	BlockWhenExhausted bool `yaml:"block-when-exhausted"`
	// 阻塞等待的最大时长。小于等于0表示无限期等待。
	MaxWait time.Duration `yaml:"max-wait"`
	// 是否由后台任务检查空闲连接。需同时设置EvictionInterval。
	TestWhileIdle bool `yaml:"test-while-idle"`
	// 空闲检查的频率。小于等于0则关闭后台检查。
	EvictionInterval time.Duration `yaml:"eviction-interval"`
	// 连接空闲的最大时长，仅在开启后台检查时生效。
	MinEvictableIdle time.Duration `yaml:"min-evictable-idle"`
	// 连接存活的最大时长。为0则永远不关闭。
	MaxConnAge time.Duration `yaml:"max-conn-age"`
}

// DefaultPoolPolicy 保持热连接池，且永不因连接耗尽而拒绝调用方。
func DefaultPoolPolicy() PoolPolicy {
	return PoolPolicy{
		MaxIdle:            64,
		MinIdle:            50,
		BlockWhenExhausted: true,
		MaxWait:            0,
		TestWhileIdle:      true,
		EvictionInterval:   -1,
		MinEvictableIdle:   2 * time.Minute,
	}
}

func (p PoolPolicy) Validate() error {
	if p.MaxIdle <= 0 {
		return &ConfigError{Entry: "max-idle", Reason: "必须大于0"}
	}
	if p.MinIdle < 0 || p.MinIdle > p.MaxIdle {
		return &ConfigError{Entry: "min-idle", Reason: "必须介于0与max-idle之间"}
	}
	return nil
}

// poolTimeout 等待可用连接的最大时长。
func (p PoolPolicy) poolTimeout() time.Duration {
	if !p.BlockWhenExhausted {
		return time.Nanosecond
	}
	if p.MaxWait <= 0 {
		return waitForever
	}
	return p.MaxWait
}

// idleCheck 返回空闲检查频率与空闲超时。为-1表示关闭。
func (p PoolPolicy) idleCheck() (frequency, timeout time.Duration) {
	if !p.TestWhileIdle || p.EvictionInterval <= 0 {
		return -1, -1
	}
	return p.EvictionInterval, p.MinEvictableIdle
}
