package internal

import (
	"context"
	"strings"
	"sync"

	"github.com/Chngzhen/log4g"
	"github.com/go-redis/redis/v8"
)

const deleteBatchSize = 500

// CountKeys 统计各主节点中匹配pattern的键数量。pattern为空时统计节点的所有键。
func (c *Commands) CountKeys(ctx context.Context, pattern string) (map[string]uint64, error) {
	pattern = strings.TrimSpace(pattern)
	var mu sync.Mutex
	matchedTotalForEachNode := make(map[string]uint64)

	err := c.execute("CountKeys", pattern, func(rdb *redis.ClusterClient) error {
		// 遍历集群中的主节点
		return rdb.ForEachMaster(ctx, func(ctx context.Context, master *redis.Client) error {
			var total uint64
			if pattern == "" {
				n, err := master.DBSize(ctx).Result()
				if err != nil {
					return err
				}
				total = uint64(n)
			} else {
				var err error
				if total, err = scanKeys(ctx, master, pattern, nil); err != nil {
					return err
				}
			}

			mu.Lock()
			matchedTotalForEachNode[master.Options().Addr] = total
			mu.Unlock()
			return nil
		})
	})
	return matchedTotalForEachNode, err
}

// DeleteKeys 删除各主节点中匹配pattern的键，返回各节点的匹配数量。
// 为提高删除效率，扫描与删除通过channel并行进行。
func (c *Commands) DeleteKeys(ctx context.Context, pattern string) (map[string]uint64, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, &ConfigError{Entry: "pattern", Reason: "匹配格式不能为空"}
	}

	var mu sync.Mutex
	matchedTotalForEachNode := make(map[string]uint64)

	err := c.execute("DeleteKeys", pattern, func(rdb *redis.ClusterClient) error {
		keyChannel := make(chan string, 1000)
		var deleteErr error
		var deleted int64
		var wg sync.WaitGroup
		wg.Add(1)
		// 删除协程
		go func() {
			defer wg.Done()
			deleted, deleteErr = deleteBatch(ctx, rdb, keyChannel)
		}()

		// 查找
		scanErr := rdb.ForEachMaster(ctx, func(ctx context.Context, master *redis.Client) error {
			total, err := scanKeys(ctx, master, pattern, keyChannel)
			mu.Lock()
			matchedTotalForEachNode[master.Options().Addr] = total
			mu.Unlock()
			return err
		})
		close(keyChannel)
		wg.Wait()

		log4g.Info("匹配[%s]的键共删除%d个", pattern, deleted)
		if scanErr != nil {
			return scanErr
		}
		return deleteErr
	})
	return matchedTotalForEachNode, err
}

// scanKeys 扫描节点中匹配的键。keys不为nil时将每个键发送到keys。
func scanKeys(ctx context.Context, rdb *redis.Client, pattern string, keys chan<- string) (uint64, error) {
	var cursor, matchedTotal uint64
	for {
		var batch []string
		var err error
		// count为0时取服务端默认值
		if batch, cursor, err = rdb.Scan(ctx, cursor, pattern, 0).Result(); err != nil {
			log4g.Error("节点[%s]扫描异常：%+v", rdb.Options().Addr, err)
			return matchedTotal, err
		}

		if keys != nil {
			for _, key := range batch {
				keys <- key
			}
		}
		matchedTotal += uint64(len(batch))

		if cursor == 0 {
			return matchedTotal, nil
		}
	}
}

// deleteBatch 通过管道批量删除，每deleteBatchSize个键提交一次。
// 提交失败时继续消费channel，以免阻塞扫描协程。
func deleteBatch(ctx context.Context, rdb *redis.ClusterClient, keys <-chan string) (int64, error) {
	var deleted int64
	var firstErr error
	commands := make([]*redis.IntCmd, 0, deleteBatchSize)
	pipeline := rdb.Pipeline()

	flush := func() {
		if len(commands) == 0 {
			return
		}
		if _, err := pipeline.Exec(ctx); err != nil {
			log4g.Error("管道提交失败：%+v", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			for _, cmd := range commands {
				deleted += cmd.Val()
			}
		}
		commands = commands[:0]
	}

	for key := range keys {
		if firstErr != nil {
			continue
		}
		commands = append(commands, pipeline.Del(ctx, key))
		if len(commands) == deleteBatchSize {
			flush()
		}
	}
	flush()
	return deleted, firstErr
}
