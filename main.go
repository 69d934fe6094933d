package main

import (
	"context"
	"os"

	"clusterkv/internal"

	"github.com/Chngzhen/log4g"
	"github.com/spf13/cobra"
)

var version = "2.0.0"

var cfgFile, nodes, password, timeout string

var pool = internal.NewPoolManager()
var commands *internal.Commands

// ./clusterkv -n 127.0.0.1:7001,127.0.0.1:7002 -a 'Password' count 'user:info:136*'
var rootCmd = &cobra.Command{
	Use:           "clusterkv",
	Short:         "Redis集群访问工具",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 无需连接集群的命令
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		settings, err := internal.LoadSettings(cfgFile)
		if err != nil {
			return err
		}
		// 命令行参数优先于配置文件与环境变量
		if nodes != "" {
			settings.Hosts = nodes
		}
		if password != "" {
			settings.Password = password
		}
		if timeout != "" {
			settings.Timeout = timeout
		}
		if err := internal.Bootstrap(cmd.Context(), pool, settings); err != nil {
			return err
		}
		commands = internal.NewCommands(pool)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if commands == nil {
			return
		}
		if err := pool.Close(); err != nil {
			log4g.Error("Redis客户端关闭失败：%+v", err)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "输出版本",
	Run: func(cmd *cobra.Command, args []string) {
		println("ClusterKV V" + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "可选。YAML配置文件。")
	rootCmd.PersistentFlags().StringVarP(&nodes, "nodes", "n", "", "Redis集群节点，多个用英文逗号分隔。如127.0.0.1:7001,127.0.0.1:7002。")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "a", "", "若Redis设置了访问密码，则必填。")
	rootCmd.PersistentFlags().StringVarP(&timeout, "timeout", "t", "", "可选。超时时长，单位毫秒。默认：10000。")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log4g.Error("%+v", err)
		os.Exit(1)
	}
}
