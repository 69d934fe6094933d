package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"clusterkv/internal"

	"github.com/Chngzhen/log4g"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "获取字符串",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := commands.GetString(cmd.Context(), args[0])
				return show(value, err)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value> [ttl-seconds]",
			Short: "存放字符串",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ttl, err := optionalInt(args, 2)
				if err != nil {
					return err
				}
				if !commands.SetString(cmd.Context(), args[0], ttl, args[1]) {
					return fmt.Errorf("存放[%s]失败", args[0])
				}
				return show("OK", nil)
			},
		},
		&cobra.Command{
			Use:   "del <key>",
			Short: "删除键",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.Delete(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "exists <key>",
			Short: "判断键是否存在",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.Exists(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "ttl <key>",
			Short: "查看剩余过期时间（秒）",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.TTL(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "expire <key> <seconds>",
			Short: "设置过期时间",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				seconds, err := strconv.Atoi(args[1])
				if err != nil {
					return err
				}
				return commands.SetExpire(cmd.Context(), args[0], seconds)
			},
		},
		&cobra.Command{
			Use:   "incr <key> [by]",
			Short: "计数器累加",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 1 {
					return show(commands.Increment(cmd.Context(), args[0]))
				}
				by, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return err
				}
				return show(commands.IncrementBy(cmd.Context(), args[0], by))
			},
		},
		&cobra.Command{
			Use:   "hget <key> <field>",
			Short: "获取哈希字段",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.GetHashField(cmd.Context(), args[0], args[1]))
			},
		},
		&cobra.Command{
			Use:   "hgetall <key> [field...]",
			Short: "获取哈希表，指定字段时只返回这些字段",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 1 {
					return show(commands.GetHash(cmd.Context(), args[0]))
				}
				return show(commands.GetHashFields(cmd.Context(), args[0], args[1:]))
			},
		},
		&cobra.Command{
			Use:   "hset <key> <field=value>...",
			Short: "写入哈希表",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				fields := make(map[string]string, len(args)-1)
				for _, pair := range args[1:] {
					kv := strings.SplitN(pair, "=", 2)
					if len(kv) != 2 {
						return fmt.Errorf("字段格式必须为field=value：%s", pair)
					}
					fields[kv[0]] = kv[1]
				}
				return show(commands.SetHash(cmd.Context(), args[0], fields, 0))
			},
		},
		&cobra.Command{
			Use:   "llen <key>",
			Short: "列表长度",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.ListLength(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "lpush <key> <value>...",
			Short: "从左侧压入列表",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.PushLeft(cmd.Context(), args[0], args[1:]))
			},
		},
		&cobra.Command{
			Use:   "rpush <key> <value>...",
			Short: "追加到列表右侧",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.PushRight(cmd.Context(), args[0], args[1:]))
			},
		},
		&cobra.Command{
			Use:   "rpop <key>",
			Short: "从右侧弹出",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return show(commands.PopRight(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "rotate <key> <count>",
			Short: "从右侧弹出count个元素并压回左侧",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				count, err := strconv.Atoi(args[1])
				if err != nil {
					return err
				}
				return show(commands.PopRightRotateLeft(cmd.Context(), args[0], count))
			},
		},
		&cobra.Command{
			Use:   "lrange <key> <end>",
			Short: "获取下标0到end的元素",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				end, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return err
				}
				return show(commands.RangeFromLeft(cmd.Context(), args[0], end))
			},
		},
		&cobra.Command{
			Use:   "count [pattern]",
			Short: "统计匹配的键数量",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				results, err := commands.CountKeys(cmd.Context(), strings.Join(args, ""))
				output(results)
				return err
			},
		},
		&cobra.Command{
			Use:   "clear <pattern>",
			Short: "删除匹配的键",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				results, err := commands.DeleteKeys(cmd.Context(), args[0])
				output(results)
				return err
			},
		},
	)
}

func show(value interface{}, err error) error {
	if errors.Is(err, internal.ErrMissing) {
		fmt.Println("(nil)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func optionalInt(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, nil
	}
	return strconv.Atoi(args[i])
}

func output(data map[string]uint64) {
	if len(data) == 0 {
		return
	}
	log4g.Info("********** 开始统计 **********")
	var total uint64
	for k, v := range data {
		total += v
		log4g.Info("节点[%s]的匹配数量：%d", k, v)
	}
	log4g.Info("所有节点的匹配数量：%d", total)
	log4g.Info("********** 结束统计 **********")
}
