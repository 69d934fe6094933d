package internal

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Chngzhen/log4g"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CLUSTERKV_"

// Settings 启动时由外部提供的集群配置。
type Settings struct {
	// 集群节点，如127.0.0.1:7001,127.0.0.1:7002。
	Hosts string `yaml:"hosts"`
	// 为空则不认证。
	Password string `yaml:"password"`
	// 连接/读写超时，单位毫秒。为空则取10000。
	Timeout string      `yaml:"timeout"`
	Pool    *PoolPolicy `yaml:"pool"`
}

// LoadSettings 若指定了path则先读取YAML文件，再以环境变量覆盖。
func LoadSettings(path string) (*Settings, error) {
	var settings Settings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败：%w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("解析配置文件失败：%w", err)
		}
	}
	if v := os.Getenv(envPrefix + "HOSTS"); v != "" {
		settings.Hosts = v
	}
	if v := os.Getenv(envPrefix + "PASSWORD"); v != "" {
		settings.Password = v
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		settings.Timeout = v
	}
	return &settings, nil
}

func (s *Settings) TimeoutDuration() (time.Duration, error) {
	timeout := strings.TrimSpace(s.Timeout)
	if timeout == "" {
		return DefaultTimeout, nil
	}
	ms, err := strconv.Atoi(timeout)
	if err != nil || ms <= 0 {
		return 0, &ConfigError{Entry: s.Timeout, Reason: "超时时长必须为正整数毫秒", Err: err}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Property 将配置转换为集群客户端的构建参数。
func (s *Settings) Property() (*Property, error) {
	nodes, err := ParseNodes(s.Hosts)
	if err != nil {
		return nil, err
	}
	timeout, err := s.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	pool := DefaultPoolPolicy()
	if s.Pool != nil {
		pool = *s.Pool
	}
	return &Property{
		Nodes:        nodes,
		Password:     s.Password,
		Timeout:      timeout,
		MaxRedirects: DefaultRedirects,
		Pool:         pool,
	}, nil
}

// Bootstrap 根据启动配置初始化连接池。
func Bootstrap(ctx context.Context, manager *PoolManager, settings *Settings) error {
	if strings.TrimSpace(settings.Hosts) == "" {
		log4g.Error("严重错误，未配置Redis集群节点")
		return &ConfigError{Entry: "hosts", Reason: "集群节点不能为空"}
	}
	property, err := settings.Property()
	if err != nil {
		log4g.Error("Redis集群配置错误：%+v", err)
		return err
	}
	return manager.InitializeWith(ctx, property)
}

// ParseNodes 解析以英文逗号分隔的host:port列表。重复的节点只保留首次出现的一个。
func ParseNodes(hostList string) ([]Node, error) {
	if strings.TrimSpace(hostList) == "" {
		return nil, &ConfigError{Entry: hostList, Reason: "集群节点不能为空"}
	}

	var nodes []Node
	seen := make(map[Node]struct{})
	for _, entry := range strings.Split(hostList, ",") {
		entry = strings.TrimSpace(entry)
		fields := strings.Split(entry, ":")
		if len(fields) != 2 {
			return nil, &ConfigError{Entry: entry, Reason: "节点地址必须为host:port"}
		}
		host := strings.TrimSpace(fields[0])
		if host == "" {
			return nil, &ConfigError{Entry: entry, Reason: "主机名不能为空"}
		}
		port, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || port <= 0 || port > 65535 {
			return nil, &ConfigError{Entry: entry, Reason: "端口不合法", Err: err}
		}

		node := Node{Host: host, Port: port}
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}
