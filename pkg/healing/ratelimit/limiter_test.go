package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

func TestRatelimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ratelimit Suite")
}

var _ = Describe("RedisLimiter", func() {
	var (
		ctx       context.Context
		miniRedis *miniredis.Miniredis
		client    *redis.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: miniRedis.Addr()})
	})

	AfterEach(func() {
		client.Close()
		miniRedis.Close()
	})

	It("allows up to the configured limit within the window", func() {
		limiter := NewRedisLimiter(client, WithLimit(3))
		for i := 0; i < 3; i++ {
			ok, err := limiter.Allow(ctx, "session-a")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue(), "attempt %d should be allowed", i+1)
		}
	})

	It("rejects once the limit is reached within the window", func() {
		limiter := NewRedisLimiter(client, WithLimit(2))
		for i := 0; i < 2; i++ {
			ok, _ := limiter.Allow(ctx, "session-b")
			Expect(ok).To(BeTrue())
		}
		ok, err := limiter.Allow(ctx, "session-b")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("keeps sessions independent", func() {
		limiter := NewRedisLimiter(client, WithLimit(1))
		okA, _ := limiter.Allow(ctx, "session-a")
		okB, _ := limiter.Allow(ctx, "session-b")
		Expect(okA).To(BeTrue())
		Expect(okB).To(BeTrue())
	})

	It("allows again once old tokens fall outside the window", func() {
		base := time.Now()
		tick := base
		limiter := NewRedisLimiter(client, WithLimit(1), WithWindow(time.Minute))
		limiter.nowFn = func() time.Time { return tick }

		ok, _ := limiter.Allow(ctx, "session-c")
		Expect(ok).To(BeTrue())

		ok, _ = limiter.Allow(ctx, "session-c")
		Expect(ok).To(BeFalse())

		tick = base.Add(61 * time.Second)
		miniRedis.FastForward(61 * time.Second)
		ok, err := limiter.Allow(ctx, "session-c")
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})
