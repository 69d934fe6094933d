package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized 连接池尚未成功初始化。
	ErrNotInitialized = errors.New("集群连接池未初始化")
	// ErrMissing 键、字段或列表元素不存在。
	ErrMissing = errors.New("数据不存在")
	// ErrTimedOut 阻塞等待期间没有可用元素。
	ErrTimedOut = errors.New("等待超时，无可用元素")
)

// ConfigError 集群配置不合法，应中止启动。
type ConfigError struct {
	Entry  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("配置项[%s]不合法：%s：%v", e.Entry, e.Reason, e.Err)
	}
	return fmt.Sprintf("配置项[%s]不合法：%s", e.Entry, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PoolInitError 集群客户端创建失败，进程无法继续访问集群。
type PoolInitError struct {
	Nodes []string
	Err   error
}

func (e *PoolInitError) Error() string {
	return fmt.Sprintf("集群客户端创建失败%v：%v", e.Nodes, e.Err)
}

func (e *PoolInitError) Unwrap() error {
	return e.Err
}

// TransportError 远程命令执行失败，包括网络异常、超时以及超过重定向上限。
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s(%s)执行失败：%v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
