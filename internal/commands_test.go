package internal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/bsm/ginkgo/v2"
	. "github.com/bsm/gomega"
)

var _ = Describe("Commands", func() {
	ctx := context.Background()

	var node *miniredis.Miniredis
	var pool *PoolManager
	var commands *Commands

	BeforeEach(func() {
		node, pool = startNode(ctx)
		commands = NewCommands(pool, WithBlockingWait(time.Second))
	})

	AfterEach(func() {
		Expect(pool.Close()).To(Succeed())
		node.Close()
	})

	Describe("strings", func() {
		It("should SET/GET without expiry", func() {
			Expect(commands.SetString(ctx, "user:1", 0, "alice")).To(BeTrue())

			value, err := commands.GetString(ctx, "user:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("alice"))

			ttl, err := commands.TTL(ctx, "user:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(Equal(TTLNoExpiry))
		})

		It("should overwrite an existing key", func() {
			Expect(commands.SetString(ctx, "user:1", 0, "alice")).To(BeTrue())
			Expect(commands.SetString(ctx, "user:1", 0, "bob")).To(BeTrue())

			value, err := commands.GetString(ctx, "user:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("bob"))
		})

		It("should SET with a TTL", func() {
			Expect(commands.SetString(ctx, "session", 5, "token")).To(BeTrue())

			ttl, err := commands.TTL(ctx, "session")
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(BeNumerically(">", 0))
			Expect(ttl).To(BeNumerically("<=", 5))

			node.FastForward(6 * time.Second)
			_, err = commands.GetString(ctx, "session")
			Expect(err).To(MatchError(ErrMissing))
		})

		It("should report a missing key", func() {
			_, err := commands.GetString(ctx, "absent")
			Expect(err).To(MatchError(ErrMissing))

			ttl, err := commands.TTL(ctx, "absent")
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(Equal(TTLMissingKey))
		})

		It("should SET/EXISTS/DEL", func() {
			Expect(commands.SetString(ctx, "k", 0, "v")).To(BeTrue())

			exists, err := commands.Exists(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			Expect(commands.Delete(ctx, "k")).To(Succeed())
			exists, err = commands.Exists(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("should EXPIRE an existing key", func() {
			Expect(commands.SetString(ctx, "k", 0, "v")).To(BeTrue())
			Expect(commands.SetExpire(ctx, "k", 30)).To(Succeed())

			ttl, err := commands.TTL(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(Equal(int64(30)))
		})
	})

	Describe("counters", func() {
		It("should INCR from zero and stay monotonic", func() {
			for i := int64(1); i <= 5; i++ {
				n, err := commands.Increment(ctx, "counter")
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(i))
			}
		})

		It("should INCRBY and DECR", func() {
			n, err := commands.IncrementBy(ctx, "counter", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(10)))

			n, err = commands.Decrement(ctx, "counter")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(9)))
		})

		It("should propagate a non-integer value as TransportError", func() {
			Expect(commands.SetString(ctx, "counter", 0, "abc")).To(BeTrue())

			_, err := commands.Increment(ctx, "counter")
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Op).To(Equal("Increment"))
			Expect(transportErr.Key).To(Equal("counter"))
		})
	})

	Describe("hashes", func() {
		BeforeEach(func() {
			ok, err := commands.SetHash(ctx, "card", map[string]string{"a": "1", "b": "2"}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("should HGETALL", func() {
			fields, err := commands.GetHash(ctx, "card")
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(Equal(map[string]string{"a": "1", "b": "2"}))

			fields, err = commands.GetHash(ctx, "absent")
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(BeEmpty())
		})

		It("should HMGET only the stored fields", func() {
			fields, err := commands.GetHashFields(ctx, "card", []string{"a", "b", "c"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(Equal(map[string]string{"a": "1", "b": "2"}))

			_, err = commands.GetHashFields(ctx, "card", nil)
			Expect(err).To(MatchError(ErrMissing))
		})

		It("should HGET/HEXISTS/HDEL", func() {
			value, err := commands.GetHashField(ctx, "card", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("1"))

			_, err = commands.GetHashField(ctx, "card", "c")
			Expect(err).To(MatchError(ErrMissing))

			exists, err := commands.HashFieldExists(ctx, "card", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			removed, err := commands.DeleteHashField(ctx, "card", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(1)))

			removed, err = commands.DeleteHashField(ctx, "card", "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(0)))
		})

		It("should HINCRBY absent and existing fields", func() {
			n, err := commands.IncrementHashField(ctx, "card", "hits", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))

			n, err = commands.IncrementHashField(ctx, "card", "a", -2)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(-1)))
		})

		It("should set an expiry after the write", func() {
			ok, err := commands.SetHash(ctx, "card", map[string]string{"c": "3"}, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ttl, err := commands.TTL(ctx, "card")
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(Equal(int64(20)))
		})

		It("should skip an empty field map", func() {
			ok, err := commands.SetHash(ctx, "empty", nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			exists, err := commands.Exists(ctx, "empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("should update fields in place", func() {
			Expect(commands.UpdateHash(ctx, "card", map[string]string{"a": "10"})).To(Succeed())

			fields, err := commands.GetHash(ctx, "card")
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(Equal(map[string]string{"a": "10", "b": "2"}))
		})
	})

	Describe("lists", func() {
		It("should RPUSH/LLEN/RPOP", func() {
			n, err := commands.PushRight(ctx, "queue", []string{"x", "y"})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			n, err = commands.ListLength(ctx, "queue")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			value, err := commands.PopRight(ctx, "queue")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("y"))

			value, err = commands.PopRight(ctx, "queue")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("x"))

			_, err = commands.PopRight(ctx, "queue")
			Expect(err).To(MatchError(ErrMissing))
		})

		It("should LPUSH in front", func() {
			_, err := commands.PushRight(ctx, "queue", []string{"c"})
			Expect(err).NotTo(HaveOccurred())
			n, err := commands.PushLeft(ctx, "queue", []string{"b", "a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))

			values, err := commands.RangeFromLeft(ctx, "queue", -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal([]string{"a", "b", "c"}))
		})

		It("should ignore an empty push", func() {
			n, err := commands.PushLeft(ctx, "queue", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			n, err = commands.PushRight(ctx, "queue", []string{})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("should LRANGE up to an index", func() {
			_, err := commands.PushRight(ctx, "queue", []string{"a", "b", "c", "d"})
			Expect(err).NotTo(HaveOccurred())

			values, err := commands.RangeFromLeft(ctx, "queue", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal([]string{"a", "b"}))

			values, err = commands.RangeFromLeft(ctx, "absent", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(BeEmpty())
		})

		It("should LREM every occurrence", func() {
			_, err := commands.PushRight(ctx, "queue", []string{"a", "b", "a", "c", "a"})
			Expect(err).NotTo(HaveOccurred())

			removed, err := commands.RemoveByValue(ctx, "queue", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(3)))

			values, err := commands.RangeFromLeft(ctx, "queue", -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(Equal([]string{"b", "c"}))
		})

		Describe("PopRightRotateLeft", func() {
			BeforeEach(func() {
				_, err := commands.PushRight(ctx, "cards", []string{"A", "B", "C", "D"})
				Expect(err).NotTo(HaveOccurred())
			})

			It("should rotate the tail onto the head", func() {
				popped, err := commands.PopRightRotateLeft(ctx, "cards", 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(popped).To(Equal([]string{"D", "C"}))

				values, err := commands.RangeFromLeft(ctx, "cards", -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal([]string{"C", "D", "A", "B"}))
			})

			It("should rotate the whole list", func() {
				popped, err := commands.PopRightRotateLeft(ctx, "cards", 4)
				Expect(err).NotTo(HaveOccurred())
				Expect(popped).To(Equal([]string{"D", "C", "B", "A"}))

				values, err := commands.RangeFromLeft(ctx, "cards", -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal([]string{"A", "B", "C", "D"}))
			})

			It("should not mutate a list that is too short", func() {
				_, err := commands.PopRightRotateLeft(ctx, "cards", 5)
				Expect(err).To(MatchError(ErrMissing))

				values, err := commands.RangeFromLeft(ctx, "cards", -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(values).To(Equal([]string{"A", "B", "C", "D"}))
			})

			It("should rotate more elements than a single unpack allows", func() {
				const total, count = 9000, 8500
				values := make([]string, total)
				for i := range values {
					values[i] = strconv.Itoa(i)
				}
				Expect(commands.Delete(ctx, "cards")).To(Succeed())
				_, err := commands.PushRight(ctx, "cards", values)
				Expect(err).NotTo(HaveOccurred())

				popped, err := commands.PopRightRotateLeft(ctx, "cards", count)
				Expect(err).NotTo(HaveOccurred())
				Expect(popped).To(HaveLen(count))
				for i, v := range popped {
					Expect(v).To(Equal(strconv.Itoa(total - 1 - i)))
				}

				// 最后弹出的元素位于表头
				expected := append(append([]string{}, values[total-count:]...), values[:total-count]...)
				rotated, err := commands.RangeFromLeft(ctx, "cards", -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(rotated).To(Equal(expected))
			})

			It("should return nothing for a zero count", func() {
				popped, err := commands.PopRightRotateLeft(ctx, "cards", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(popped).To(BeEmpty())
			})
		})

		It("should BRPOP an available element", func() {
			_, err := commands.PushRight(ctx, "jobs", []string{"j1", "j2"})
			Expect(err).NotTo(HaveOccurred())

			value, err := commands.BlockingPopRight(ctx, "jobs")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("j2"))
		})

		It("should BRPOP an element pushed while waiting", func() {
			go func() {
				defer GinkgoRecover()
				time.Sleep(100 * time.Millisecond)
				_, err := commands.PushRight(ctx, "jobs", []string{"late"})
				Expect(err).NotTo(HaveOccurred())
			}()

			value, err := commands.BlockingPopRight(ctx, "jobs")
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal("late"))
		})

		It("should time out when nothing arrives", func() {
			_, err := commands.BlockingPopRight(ctx, "idle")
			Expect(err).To(MatchError(ErrTimedOut))
		})
	})

	Describe("failures", func() {
		It("should return false from SetString when not initialized", func() {
			commands := NewCommands(NewPoolManager())
			Expect(commands.SetString(ctx, "k", 0, "v")).To(BeFalse())

			_, err := commands.GetString(ctx, "k")
			Expect(err).To(MatchError(ErrNotInitialized))
		})

		It("should return false from SetString when the node fails", func() {
			node.SetError("ERR node unavailable")
			Expect(commands.SetString(ctx, "k", 0, "v")).To(BeFalse())

			_, err := commands.SetHash(ctx, "h", map[string]string{"a": "1"}, 0)
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.Op).To(Equal("SetHash"))

			_, err = commands.GetString(ctx, "k")
			Expect(errors.As(err, &transportErr)).To(BeTrue())
		})

		It("should record per-operation statistics", func() {
			Expect(commands.SetString(ctx, "k", 0, "v")).To(BeTrue())
			_, err := commands.GetString(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			_, err = commands.GetString(ctx, "absent")
			Expect(err).To(MatchError(ErrMissing))

			stats := commands.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats[0].Op).To(Equal("GetString"))
			Expect(stats[0].Calls).To(Equal(uint64(2)))
			Expect(stats[0].Failures).To(BeZero())
			Expect(stats[1].Op).To(Equal("SetString"))
			Expect(stats[1].Calls).To(Equal(uint64(1)))
		})
	})
})

var _ = Describe("zipFields", func() {
	It("should omit fields without a value", func() {
		fields := zipFields([]string{"a", "b", "c"}, []interface{}{"1", nil, ""})
		Expect(fields).To(Equal(map[string]string{"a": "1"}))
	})

	It("should return an empty map on a count mismatch", func() {
		fields := zipFields([]string{"a", "b", "c"}, []interface{}{"1", "2"})
		Expect(fields).NotTo(BeNil())
		Expect(fields).To(BeEmpty())
	})
})
