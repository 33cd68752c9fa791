// Command zfl-loadtest exercises the issue/verify hot path under
// concurrency and reports throughput and latency percentiles. With no
// -redis-addr it runs self-contained against miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	zerofriction "github.com/justwpthings/zerofriction"
)

func main() {
	var (
		identities  = flag.Int("identities", 10000, "number of distinct identities")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (issue + verify)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client *redis.Client
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := zerofriction.DefaultConfig()
	cfg.RateLimit.TestBypass = true
	cfg.Audit.Enabled = false

	engine, err := zerofriction.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSecret([]byte("loadtest-secret-of-32-bytes-padpad")).
		AllowTestBypass().
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *identities)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
	}

	codes := make([]atomicCode, *identities)

	issueStats := runPhase(ctx, *ops, *concurrency, func(r *rand.Rand) error {
		idx := r.Intn(len(emails))
		issued, err := engine.RequestCredential(ctx, emails[idx], zerofriction.KindNumericOTP)
		if err != nil {
			return err
		}
		codes[idx].store(issued.Code)
		return nil
	})

	verifyStats := runPhase(ctx, *ops, *concurrency, func(r *rand.Rand) error {
		idx := r.Intn(len(emails))
		code := codes[idx].load()
		if code == "" {
			return nil
		}
		_, err := engine.VerifyCredential(ctx, emails[idx], code)
		if err != nil {
			// A consumed or superseded code is expected under contention;
			// reissue so later verifies can hit.
			issued, issueErr := engine.RequestCredential(ctx, emails[idx], zerofriction.KindNumericOTP)
			if issueErr == nil {
				codes[idx].store(issued.Code)
			}
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("verify", verifyStats)
}

type atomicCode struct {
	mu   sync.Mutex
	code string
}

func (c *atomicCode) store(code string) {
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
}

func (c *atomicCode) load() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func runPhase(ctx context.Context, ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
