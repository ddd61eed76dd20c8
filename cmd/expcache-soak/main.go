// Command expcache-soak hammers an expcache.Store with concurrent readers and
// writers and reports hit ratio, evictions by reason and heap use. Flags can
// also come from a YAML config file or EXPCACHE_* environment variables.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/expcache"
	"github.com/unkn0wn-root/expcache/codec"
	asynchook "github.com/unkn0wn-root/expcache/hooks/async"
	"github.com/unkn0wn-root/expcache/genstore"
	charmlog "github.com/unkn0wn-root/expcache/log/charm"
	zaplog "github.com/unkn0wn-root/expcache/log/zap"
	"github.com/unkn0wn-root/expcache/pressure"
	pr "github.com/unkn0wn-root/expcache/provider"
	"github.com/unkn0wn-root/expcache/provider/bigcache"
	redisprovider "github.com/unkn0wn-root/expcache/provider/redis"
	"github.com/unkn0wn-root/expcache/provider/ristretto"
	"github.com/unkn0wn-root/expcache/sloghooks"
	"github.com/unkn0wn-root/expcache/spill"
	"github.com/unkn0wn-root/expcache/trigger"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:          "expcache-soak",
		Short:        "Load-test an expcache store",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromViper()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
)

type config struct {
	Keys            int
	Workers         int
	Duration        time.Duration
	Sliding         time.Duration
	Absolute        time.Duration
	CompactEvery    time.Duration
	CompactFraction float64
	ValueSize       int
	SizeLimit       int64
	Rate            float64
	RemovePct       int
	Spill           bool
	SpillBackend    string
	RedisAddr       string
	GenStore        string
	Groups          int
	InvalidateEvery time.Duration
	LogFormat       string
	Debug           bool
}

func init() {
	f := rootCmd.Flags()
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml)")
	f.Int("keys", 10_000, "distinct keys")
	f.Int("workers", 8, "concurrent workers")
	f.Duration("duration", 10*time.Second, "how long to run")
	f.Duration("sliding", 2*time.Second, "sliding expiration per entry (0 disables)")
	f.Duration("absolute", 0, "absolute expiration per entry (0 disables)")
	f.Duration("compact-every", time.Second, "explicit Compact interval (0 disables)")
	f.Float64("compact-fraction", 0.05, "fraction removed by each explicit Compact")
	f.Int("value-size", 256, "bytes per value")
	f.Int64("size-limit", 0, "store size limit in bytes (0 = unlimited)")
	f.Float64("rate", 0, "max operations per second across workers (0 = unlimited)")
	f.Int("remove-pct", 5, "percentage of operations that Remove instead of GetOrCreate")
	f.Bool("spill", false, "demote capacity evictions into a spill tier")
	f.String("spill-backend", "ristretto", "spill provider: ristretto, bigcache or redis")
	f.String("redis-addr", "127.0.0.1:6379", "redis address for the redis spill backend and genstore")
	f.String("genstore", "off", "generation store for dependency triggers: off, local or redis")
	f.Int("groups", 64, "dependency groups keys are spread over")
	f.Duration("invalidate-every", 0, "bump one random group this often (0 disables)")
	f.String("log-format", "text", "text or json")
	f.Bool("debug", false, "debug logging")

	for _, name := range []string{
		"keys", "workers", "duration", "sliding", "absolute", "compact-every",
		"compact-fraction", "value-size", "size-limit", "rate", "remove-pct", "spill", "spill-backend",
		"redis-addr", "genstore", "groups", "invalidate-every", "log-format", "debug",
	} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func loadConfig() error {
	viper.SetEnvPrefix("expcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", configFile, err)
	}
	return nil
}

func configFromViper() (config, error) {
	cfg := config{
		Keys:            viper.GetInt("keys"),
		Workers:         viper.GetInt("workers"),
		Duration:        viper.GetDuration("duration"),
		Sliding:         viper.GetDuration("sliding"),
		Absolute:        viper.GetDuration("absolute"),
		CompactEvery:    viper.GetDuration("compact-every"),
		CompactFraction: viper.GetFloat64("compact-fraction"),
		ValueSize:       viper.GetInt("value-size"),
		SizeLimit:       viper.GetInt64("size-limit"),
		Rate:            viper.GetFloat64("rate"),
		RemovePct:       viper.GetInt("remove-pct"),
		Spill:           viper.GetBool("spill"),
		SpillBackend:    viper.GetString("spill-backend"),
		RedisAddr:       viper.GetString("redis-addr"),
		GenStore:        viper.GetString("genstore"),
		Groups:          viper.GetInt("groups"),
		InvalidateEvery: viper.GetDuration("invalidate-every"),
		LogFormat:       viper.GetString("log-format"),
		Debug:           viper.GetBool("debug"),
	}
	switch {
	case cfg.Keys <= 0:
		return cfg, fmt.Errorf("--keys must be positive")
	case cfg.Workers <= 0:
		return cfg, fmt.Errorf("--workers must be positive")
	case cfg.Duration <= 0:
		return cfg, fmt.Errorf("--duration must be positive")
	case cfg.CompactFraction < 0 || cfg.CompactFraction > 1:
		return cfg, fmt.Errorf("--compact-fraction must be within [0, 1]")
	case cfg.RemovePct < 0 || cfg.RemovePct > 100:
		return cfg, fmt.Errorf("--remove-pct must be within [0, 100]")
	case !oneOf(cfg.SpillBackend, "ristretto", "bigcache", "redis"):
		return cfg, fmt.Errorf("--spill-backend must be ristretto, bigcache or redis, got %q", cfg.SpillBackend)
	case !oneOf(cfg.GenStore, "off", "local", "redis"):
		return cfg, fmt.Errorf("--genstore must be off, local or redis, got %q", cfg.GenStore)
	case cfg.GenStore != "off" && cfg.Groups <= 0:
		return cfg, fmt.Errorf("--groups must be positive")
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return cfg, fmt.Errorf("--log-format must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (c config) needsRedis() bool {
	return (c.Spill && c.SpillBackend == "redis") || c.GenStore == "redis"
}

func newSpillProvider(ctx context.Context, cfg config, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch cfg.SpillBackend {
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{LifeWindow: 10 * time.Minute, HardMaxCacheSizeMB: 64})
	case "redis":
		return redisprovider.New(redisprovider.Config{Client: rdb, MaxValueBytes: 1 << 20})
	default:
		return ristretto.New(ristretto.Config{NumCounters: int64(cfg.Keys) * 10, MaxCost: 64 << 20, BufferItems: 64})
	}
}

func newGenStore(cfg config, rdb goredis.UniversalClient) (genstore.GenStore, error) {
	switch cfg.GenStore {
	case "local":
		return genstore.NewLocal(time.Minute, 10*time.Minute), nil
	case "redis":
		return genstore.NewRedis(rdb, genstore.RedisOptions{Namespace: "soak", TTL: time.Hour})
	}
	return nil, nil
}

func newLogger(cfg config) (expcache.Logger, func(), error) {
	if cfg.LogFormat == "json" {
		zc := zap.NewProductionConfig()
		if cfg.Debug {
			zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		z, err := zc.Build()
		if err != nil {
			return nil, nil, err
		}
		return zaplog.New(z), func() { _ = z.Sync() }, nil
	}
	l := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "expcache"})
	if cfg.Debug {
		l.SetLevel(log.DebugLevel)
	}
	return charmlog.Logger{L: l}, func() {}, nil
}

type counters struct {
	ops     atomic.Uint64
	creates atomic.Uint64
	bumps   atomic.Uint64
	evicted [expcache.EvictionCapacity + 1]atomic.Uint64
}

func run(ctx context.Context, cfg config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	hooks := asynchook.New(sloghooks.New(slog.Default(), sloghooks.Options{EvictedEvery: 1000}), 1, 4096)
	defer hooks.Close()

	store, err := expcache.New[[]byte](expcache.Options{
		Logger:                  logger,
		Hooks:                   hooks,
		ExpirationScanFrequency: time.Second,
		SizeLimit:               cfg.SizeLimit,
	})
	if err != nil {
		return err
	}

	var rdb goredis.UniversalClient
	if cfg.needsRedis() {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
	}

	gs, err := newGenStore(cfg, rdb)
	if err != nil {
		return err
	}
	if gs != nil {
		defer gs.Close(context.Background())
	}

	get := store.GetOrCreate
	if cfg.Spill {
		sp, err := newSpillProvider(ctx, cfg, rdb)
		if err != nil {
			return err
		}
		defer sp.Close(context.Background())
		tier, err := spill.New(store, spill.Options[[]byte]{
			Namespace: "soak",
			Provider:  sp,
			Codec:     codec.NewZstd[[]byte](codec.Bytes{}, 0),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		get = func(key string, link *expcache.Link, _ any, create expcache.CreateFunc[[]byte]) ([]byte, error) {
			return tier.GetOrCreate(ctx, key, link, create)
		}
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, cfg.Workers)

	var c counters
	// keys k<n> depend on group g<n mod groups>
	groupOf := func(key string) string {
		n, _ := strconv.Atoi(strings.TrimPrefix(key, "k"))
		return "g" + strconv.Itoa(n%cfg.Groups)
	}
	onEvict := func(_ string, _ []byte, r expcache.EvictionReason, _ any) { c.evicted[r].Add(1) }
	create := func(e *expcache.Creation[[]byte]) ([]byte, error) {
		c.creates.Add(1)
		v := make([]byte, cfg.ValueSize)
		if gs != nil {
			g, err := trigger.NewGeneration(ctx, gs, groupOf(e.Key()), trigger.GenerationOptions{PollEvery: 100 * time.Millisecond})
			if err != nil {
				return nil, err
			}
			_ = e.AddTrigger(g)
		}
		if cfg.Sliding > 0 {
			_ = e.SetSlidingExpiration(cfg.Sliding)
		}
		if cfg.Absolute > 0 {
			_ = e.SetExpiresAfter(cfg.Absolute)
		}
		if cfg.SizeLimit > 0 {
			_ = e.SetSize(int64(len(v)))
		}
		_ = e.SetPriority(expcache.Priority(rand.IntN(3)))
		_ = e.OnEviction(onEvict, nil)
		return v, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for limiter.Wait(ctx) == nil {
				key := "k" + strconv.Itoa(rand.IntN(cfg.Keys))
				if rand.IntN(100) < cfg.RemovePct {
					_ = store.Remove(key)
					c.ops.Add(1)
					continue
				}
				if _, err := get(key, nil, nil, create); err != nil {
					if ctx.Err() == nil {
						logger.Error("get failed", expcache.Fields{"key": key, "err": err})
					}
					return
				}
				c.ops.Add(1)
			}
		}()
	}

	if cfg.CompactEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(cfg.CompactEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := store.Compact(cfg.CompactFraction); err != nil {
						logger.Warn("compact failed", expcache.Fields{"err": err})
					}
				}
			}
		}()
	}

	if gs != nil && cfg.InvalidateEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(cfg.InvalidateEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if _, err := gs.Bump(ctx, "g"+strconv.Itoa(rand.IntN(cfg.Groups))); err != nil && ctx.Err() == nil {
						logger.Warn("bump failed", expcache.Fields{"err": err})
					}
					c.bumps.Add(1)
				}
			}
		}()
	}

	start := time.Now()
	wg.Wait()
	elapsed := time.Since(start)
	st := store.Stats()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Warn("close timed out", expcache.Fields{"err": err})
	}

	report(os.Stdout, cfg, &c, st, elapsed)
	return nil
}

func report(w io.Writer, cfg config, c *counters, st expcache.Stats, elapsed time.Duration) {
	ops := c.ops.Load()
	ratio := 0.0
	if total := st.Hits + st.Misses; total > 0 {
		ratio = float64(st.Hits) / float64(total) * 100
	}
	fmt.Fprintf(w, "ran %s with %d workers over %s keys\n", elapsed.Round(time.Millisecond), cfg.Workers, humanize.Comma(int64(cfg.Keys)))
	fmt.Fprintf(w, "ops        %s (%s/s)\n", humanize.Comma(int64(ops)), humanize.Comma(int64(float64(ops)/elapsed.Seconds())))
	fmt.Fprintf(w, "hit ratio  %.1f%% (%s hits, %s misses)\n", ratio, humanize.Comma(int64(st.Hits)), humanize.Comma(int64(st.Misses)))
	fmt.Fprintf(w, "creates    %s\n", humanize.Comma(int64(c.creates.Load())))
	if b := c.bumps.Load(); b > 0 {
		fmt.Fprintf(w, "bumps      %s\n", humanize.Comma(int64(b)))
	}
	fmt.Fprintf(w, "entries    %s (%s)\n", humanize.Comma(int64(st.Entries)), humanize.IBytes(uint64(max(st.Size, 0))))
	for r := expcache.EvictionRemoved; r <= expcache.EvictionCapacity; r++ {
		fmt.Fprintf(w, "  %-10s %s\n", r, humanize.Comma(int64(c.evicted[r].Load())))
	}
	fmt.Fprintf(w, "heap       %s\n", humanize.IBytes(pressure.HeapBytes()))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
