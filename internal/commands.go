package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chngzhen/log4g"
	"github.com/go-redis/redis/v8"
)

// rotateChunkSize 轮转脚本中单次LPUSH的最大元素个数。
const rotateChunkSize = 1000

const (
	// TTLNoExpiry 键存在但未设置过期时间。
	TTLNoExpiry int64 = -1
	// TTLMissingKey 键不存在。
	TTLMissingKey int64 = -2
)

// rotateScript 仅当列表长度不小于n时，从右侧逐个弹出n个元素，再整体从左侧压回。
// unpack受Lua栈大小限制（约8000个），因此按弹出顺序分批LPUSH，结果与一次性LPUSH相同。
var rotateScript = redis.NewScript(`
local n = tonumber(ARGV[1])
local chunk = tonumber(ARGV[2])
if redis.call('LLEN', KEYS[1]) < n then
	return false
end
local popped = {}
for i = 1, n do
	popped[i] = redis.call('RPOP', KEYS[1])
end
for i = 1, n, chunk do
	local last = i + chunk - 1
	if last > n then
		last = n
	end
	redis.call('LPUSH', KEYS[1], unpack(popped, i, last))
end
return popped
`)

// Commands 集群命令门面。所有操作在调用方的协程中同步执行，不做重试。
type Commands struct {
	pool         *PoolManager
	metrics      *Metrics
	blockingWait time.Duration
}

type Option func(*Commands)

// WithBlockingWait 设置BlockingPopRight的最长等待时间。
func WithBlockingWait(wait time.Duration) Option {
	return func(c *Commands) {
		c.blockingWait = wait
	}
}

func NewCommands(pool *PoolManager, opts ...Option) *Commands {
	c := &Commands{
		pool:         pool,
		metrics:      &Metrics{},
		blockingWait: DefaultBlockingWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats 返回各操作的耗时统计。
func (c *Commands) Stats() []OpStats {
	return c.metrics.Snapshot()
}

// execute 获取当前客户端并执行命令，统一计时、记录日志与包装异常。
func (c *Commands) execute(op, key string, fn func(rdb *redis.ClusterClient) error) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(op, time.Since(start), err != nil && !isOutcome(err))
	}()

	rdb, err := c.pool.CurrentHandle()
	if err != nil {
		log4g.Error("%s(%s)执行失败：%+v", op, key, err)
		return err
	}
	if err = fn(rdb); err != nil && !isOutcome(err) {
		log4g.Error("%s(%s)执行失败：%+v", op, key, err)
		return &TransportError{Op: op, Key: key, Err: err}
	}
	return err
}

// isOutcome 判断是否为正常的查询结果而非异常。
func isOutcome(err error) bool {
	return errors.Is(err, ErrMissing) || errors.Is(err, ErrTimedOut)
}

func missing(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrMissing
	}
	return err
}

// SetString 存放字符串，ttlSeconds大于0时同时设置过期时间。
// 写入失败或异常时记录日志并返回false。
func (c *Commands) SetString(ctx context.Context, key string, ttlSeconds int, value string) bool {
	var ack string
	err := c.execute("SetString", key, func(rdb *redis.ClusterClient) error {
		var expiration time.Duration
		if ttlSeconds > 0 {
			expiration = time.Duration(ttlSeconds) * time.Second
		}
		var err error
		ack, err = rdb.Set(ctx, key, value, expiration).Result()
		return err
	})
	if err != nil {
		return false
	}
	if !strings.EqualFold(ack, "OK") {
		log4g.Error("SetString(%s)存放失败，响应：%s", key, ack)
		return false
	}
	return true
}

// GetString 键不存在时返回ErrMissing。
func (c *Commands) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := c.execute("GetString", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.Get(ctx, key).Result()
		return missing(err)
	})
	return value, err
}

// SetHash 将fields整体写入哈希表，ttlSeconds大于0时写入后设置过期时间。
// fields为空时不做任何操作并返回false。
func (c *Commands) SetHash(ctx context.Context, key string, fields map[string]string, ttlSeconds int) (bool, error) {
	if len(fields) == 0 {
		log4g.Error("SetHash(%s)需要缓存的map为空", key)
		return false, nil
	}

	var ok bool
	err := c.execute("SetHash", key, func(rdb *redis.ClusterClient) error {
		var err error
		if ok, err = rdb.HMSet(ctx, key, pairs(fields)...).Result(); err != nil {
			return err
		}
		if ttlSeconds > 0 {
			return rdb.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second).Err()
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !ok {
		log4g.Error("SetHash(%s)设置到Redis失败", key)
	}
	return ok, nil
}

// UpdateHash 更新哈希表中的字段，不检查写入响应。
func (c *Commands) UpdateHash(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return c.execute("UpdateHash", key, func(rdb *redis.ClusterClient) error {
		return rdb.HMSet(ctx, key, pairs(fields)...).Err()
	})
}

// GetHash 键不存在时返回空map。
func (c *Commands) GetHash(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := c.execute("GetHash", key, func(rdb *redis.ClusterClient) error {
		var err error
		fields, err = rdb.HGetAll(ctx, key).Result()
		return err
	})
	return fields, err
}

// GetHashFields 只返回有值的字段。names为空时返回ErrMissing。
// 若返回值个数与请求的字段个数不一致，则返回空map。
func (c *Commands) GetHashFields(ctx context.Context, key string, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return nil, ErrMissing
	}

	var fields map[string]string
	err := c.execute("GetHashFields", key, func(rdb *redis.ClusterClient) error {
		values, err := rdb.HMGet(ctx, key, names...).Result()
		if err != nil {
			return err
		}
		fields = zipFields(names, values)
		return nil
	})
	return fields, err
}

func zipFields(names []string, values []interface{}) map[string]string {
	fields := make(map[string]string, len(names))
	if len(values) != len(names) {
		return fields
	}
	for i, v := range values {
		if s, ok := v.(string); ok && s != "" {
			fields[names[i]] = s
		}
	}
	return fields
}

// GetHashField 字段不存在时返回ErrMissing。
func (c *Commands) GetHashField(ctx context.Context, key, field string) (string, error) {
	var value string
	err := c.execute("GetHashField", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.HGet(ctx, key, field).Result()
		return missing(err)
	})
	return value, err
}

func (c *Commands) HashFieldExists(ctx context.Context, key, field string) (bool, error) {
	var exists bool
	err := c.execute("HashFieldExists", key, func(rdb *redis.ClusterClient) error {
		var err error
		exists, err = rdb.HExists(ctx, key, field).Result()
		return err
	})
	return exists, err
}

// DeleteHashField 返回删除的字段个数。
func (c *Commands) DeleteHashField(ctx context.Context, key, field string) (int64, error) {
	var removed int64
	err := c.execute("DeleteHashField", key, func(rdb *redis.ClusterClient) error {
		var err error
		removed, err = rdb.HDel(ctx, key, field).Result()
		return err
	})
	return removed, err
}

// IncrementHashField 字段不存在时先初始化为"0"，再累加delta。
// 初始化与累加不是原子的：并发的首次累加可能重复初始化，但HINCRBY本身是原子的，
// 而初始化只发生在累加之前，最终结果仍然正确。
func (c *Commands) IncrementHashField(ctx context.Context, key, field string, delta int64) (int64, error) {
	var value int64
	err := c.execute("IncrementHashField", key, func(rdb *redis.ClusterClient) error {
		exists, err := rdb.HExists(ctx, key, field).Result()
		if err != nil {
			return err
		}
		if !exists {
			if err := rdb.HSet(ctx, key, field, "0").Err(); err != nil {
				return err
			}
		}
		value, err = rdb.HIncrBy(ctx, key, field, delta).Result()
		return err
	})
	return value, err
}

func (c *Commands) SetExpire(ctx context.Context, key string, seconds int) error {
	return c.execute("SetExpire", key, func(rdb *redis.ClusterClient) error {
		return rdb.Expire(ctx, key, time.Duration(seconds)*time.Second).Err()
	})
}

// TTL 返回剩余秒数；未设置过期时间返回TTLNoExpiry，键不存在返回TTLMissingKey。
func (c *Commands) TTL(ctx context.Context, key string) (int64, error) {
	var ttl time.Duration
	err := c.execute("TTL", key, func(rdb *redis.ClusterClient) error {
		var err error
		ttl, err = rdb.TTL(ctx, key).Result()
		return err
	})
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return int64(ttl), nil
	}
	return int64(ttl / time.Second), nil
}

func (c *Commands) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := c.execute("Exists", key, func(rdb *redis.ClusterClient) error {
		var err error
		n, err = rdb.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

func (c *Commands) Delete(ctx context.Context, key string) error {
	return c.execute("Delete", key, func(rdb *redis.ClusterClient) error {
		return rdb.Del(ctx, key).Err()
	})
}

func (c *Commands) Increment(ctx context.Context, key string) (int64, error) {
	var value int64
	err := c.execute("Increment", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.Incr(ctx, key).Result()
		return err
	})
	return value, err
}

func (c *Commands) IncrementBy(ctx context.Context, key string, by int64) (int64, error) {
	var value int64
	err := c.execute("IncrementBy", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.IncrBy(ctx, key, by).Result()
		return err
	})
	return value, err
}

func (c *Commands) Decrement(ctx context.Context, key string) (int64, error) {
	var value int64
	err := c.execute("Decrement", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.Decr(ctx, key).Result()
		return err
	})
	return value, err
}

func (c *Commands) ListLength(ctx context.Context, key string) (int64, error) {
	var n int64
	err := c.execute("ListLength", key, func(rdb *redis.ClusterClient) error {
		var err error
		n, err = rdb.LLen(ctx, key).Result()
		return err
	})
	return n, err
}

// PushLeft 按顺序从左侧压入values，返回列表的新长度。values为空时返回0。
func (c *Commands) PushLeft(ctx context.Context, key string, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	var n int64
	err := c.execute("PushLeft", key, func(rdb *redis.ClusterClient) error {
		var err error
		n, err = rdb.LPush(ctx, key, strs(values)...).Result()
		return err
	})
	return n, err
}

// PushRight 按顺序追加到列表右侧，返回列表的新长度。values为空时返回0。
func (c *Commands) PushRight(ctx context.Context, key string, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	var n int64
	err := c.execute("PushRight", key, func(rdb *redis.ClusterClient) error {
		var err error
		n, err = rdb.RPush(ctx, key, strs(values)...).Result()
		return err
	})
	return n, err
}

// PopRightRotateLeft 当列表长度不小于count时，从右侧依次弹出count个元素，
// 按弹出顺序返回，并将它们整体压回左侧，最后弹出的元素位于表头。
// 长度不足时不修改列表并返回ErrMissing。
func (c *Commands) PopRightRotateLeft(ctx context.Context, key string, count int) ([]string, error) {
	if count < 0 {
		return nil, ErrMissing
	}

	var popped []string
	err := c.execute("PopRightRotateLeft", key, func(rdb *redis.ClusterClient) error {
		reply, err := rotateScript.Run(ctx, rdb, []string{key}, count, rotateChunkSize).Result()
		if err != nil {
			return missing(err)
		}
		items, ok := reply.([]interface{})
		if !ok {
			return fmt.Errorf("无法识别的脚本返回值：%T", reply)
		}
		popped = make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("无法识别的列表元素：%T", item)
			}
			popped = append(popped, s)
		}
		return nil
	})
	return popped, err
}

// RangeFromLeft 返回下标0到end（含）的元素。
func (c *Commands) RangeFromLeft(ctx context.Context, key string, end int64) ([]string, error) {
	var values []string
	err := c.execute("RangeFromLeft", key, func(rdb *redis.ClusterClient) error {
		var err error
		values, err = rdb.LRange(ctx, key, 0, end).Result()
		return err
	})
	return values, err
}

// RemoveByValue 删除列表中所有等于value的元素，返回删除个数。
func (c *Commands) RemoveByValue(ctx context.Context, key, value string) (int64, error) {
	var removed int64
	err := c.execute("RemoveByValue", key, func(rdb *redis.ClusterClient) error {
		var err error
		removed, err = rdb.LRem(ctx, key, 0, value).Result()
		return err
	})
	return removed, err
}

// PopRight 列表为空时返回ErrMissing。
func (c *Commands) PopRight(ctx context.Context, key string) (string, error) {
	var value string
	err := c.execute("PopRight", key, func(rdb *redis.ClusterClient) error {
		var err error
		value, err = rdb.RPop(ctx, key).Result()
		return missing(err)
	})
	return value, err
}

// BlockingPopRight 最多等待blockingWait，期间仍无元素则返回ErrTimedOut。
func (c *Commands) BlockingPopRight(ctx context.Context, key string) (string, error) {
	var value string
	err := c.execute("BlockingPopRight", key, func(rdb *redis.ClusterClient) error {
		reply, err := rdb.BRPop(ctx, c.blockingWait, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrTimedOut
		}
		if err != nil {
			return err
		}
		// 返回值为[key, value]
		if len(reply) != 2 {
			return fmt.Errorf("无法识别的BRPOP返回值：%v", reply)
		}
		value = reply[1]
		return nil
	})
	return value, err
}

func pairs(fields map[string]string) []interface{} {
	args := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func strs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
