package main

import (
	"context"
	"errors"
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
	"go.uber.org/zap"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/notify"
	"github.com/plextask/keygate/storage/memory"
)

const loadtestSecret = "keygate-loadtest-secret-0123456789"

func main() {
	var (
		accounts    = flag.Int("accounts", 500, "number of registrations to confirm")
		contenders  = flag.Int("contenders", 4, "concurrent confirm attempts per code")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per token phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "kgload", "secret key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *contenders <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, contenders, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := keygate.DefaultConfig()
	cfg.Token.PrivateKey = []byte(loadtestSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := keygate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRedisPrefix(*prefix).
		WithAccountStore(memory.New()).
		WithNotifier(notify.NewLogMailer(zap.NewNop())).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("registering %d accounts...\n", *accounts)
	startSeed := time.Now()
	codes := make([]int, *accounts)
	for i := range codes {
		pending, err := engine.Register(ctx, registration(i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		codes[i] = pending.Code
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	confirmStats, confirmed := runConfirmPhase(ctx, engine, codes, *contenders, *concurrency)
	if confirmed != int64(len(codes)) {
		fmt.Fprintf(os.Stderr, "confirmed %d accounts, want exactly %d\n", confirmed, len(codes))
		os.Exit(1)
	}

	tokens := make([]keygate.TokenPair, *accounts)
	for i := range tokens {
		res, err := engine.Authenticate(ctx, registration(i).Nickname, registration(i).Password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = res.Tokens
	}

	validateStats := runTokenPhase(*ops, *concurrency, len(tokens), func(idx int) error {
		_, err := engine.ValidateAccess(tokens[idx].AccessToken)
		return err
	})
	refreshStats := runTokenPhase(*ops, *concurrency, len(tokens), func(idx int) error {
		_, err := engine.Refresh(ctx, tokens[idx].RefreshToken)
		return err
	})

	fmt.Println("---- results ----")
	printStats("confirm", confirmStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func registration(i int) keygate.RegistrationRequest {
	return keygate.RegistrationRequest{
		Nickname:        fmt.Sprintf("load%d", i),
		DisplayName:     fmt.Sprintf("Load User %d", i),
		Email:           fmt.Sprintf("load%d@example.com", i),
		Password:        "L0ad!test",
		ConfirmPassword: "L0ad!test",
	}
}

// runConfirmPhase redeems every code from several workers at once. Exactly
// one attempt per code may succeed; the rest must see ErrInvalidCode.
// Anything else counts as a failure.
func runConfirmPhase(ctx context.Context, engine *keygate.Engine, codes []int, contenders, concurrency int) (phaseStats, int64) {
	attempts := make([]int, 0, len(codes)*contenders)
	for _, code := range codes {
		for j := 0; j < contenders; j++ {
			attempts = append(attempts, code)
		}
	}
	rand.Shuffle(len(attempts), func(i, j int) { attempts[i], attempts[j] = attempts[j], attempts[i] })

	var (
		wg        sync.WaitGroup
		cursor    int64
		confirmed int64
		failures  int64
		latencies = make([]time.Duration, 0, len(attempts))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(attempts) {
					return
				}
				t0 := time.Now()
				_, err := engine.ConfirmRegistration(ctx, attempts[i])
				d := time.Since(t0)
				switch {
				case err == nil:
					atomic.AddInt64(&confirmed, 1)
				case errors.Is(err, keygate.ErrInvalidCode):
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), confirmed
}

func runTokenPhase(ops, concurrency, n int, op func(idx int) error) phaseStats {
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
				err := op(r.Intn(n))
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
