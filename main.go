// slabcache runs the slab allocator and the small cache on top of it, either as an
// interactive shell or as a load generator.
//
// Usage:
//
//	slabcache [flags] [repl]       interactive shell (default)
//	slabcache [flags] bench <n>    n random set/get operations
package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"slabcache/internal/config"
	"slabcache/internal/slabs"
	"slabcache/internal/store"
	"slabcache/internal/util"

	"github.com/lmittmann/tint"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("slabcache", flag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "JSONC config file")
	limit := fs.StringP("limit", "m", "", "memory limit, e.g. 64m (0 = unlimited)")
	factor := fs.Float64P("factor", "f", 0, "chunk size growth factor")
	prealloc := fs.Bool("prealloc", false, "allocate the whole limit up front")
	level := fs.String("log-level", "", "debug, info, warn or error")
	statsOut := fs.String("stats-out", "", "write stats here on exit")

	err := fs.Parse(args)
	if err != nil { return err }

	cfg, err := config.Load(*cfgPath)
	if err != nil { return err }
	if fs.Changed("limit") { cfg.MemLimit = *limit }
	if fs.Changed("factor") { cfg.GrowthFactor = *factor }
	if fs.Changed("prealloc") { cfg.Prealloc = *prealloc }
	if fs.Changed("log-level") { cfg.LogLevel = *level }
	if fs.Changed("stats-out") { cfg.StatsFile = *statsOut }
	err = cfg.Validate()
	if err != nil { return err }

	lvl, _ := cfg.Level()
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(log)

	opts, err := cfg.Options(log)
	if err != nil { return err }
	alloc, err := slabs.Create(opts)
	if err != nil { return err }
	defer alloc.Close()

	st := store.Create(alloc, log)

	switch fs.Arg(0) {
	case "", "repl":
		err = createREPL(alloc, st, os.Stdout).Run()
	case "bench":
		n, convErr := strconv.Atoi(fs.Arg(1))
		if convErr != nil || n <= 0 { return fmt.Errorf("bench wants a positive count, got %q", fs.Arg(1)) }
		bench(st, n, log)
	default:
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}
	if err != nil { return err }

	if cfg.StatsFile != "" {
		err = writeStats(st, cfg.StatsFile)
		if err != nil { return err }
		log.Info("Stats written", "path", cfg.StatsFile)
	}
	return nil
}

// writeStats replaces path with one "key value" line per stat.
func writeStats(st *store.Store, path string) error {
	var buf bytes.Buffer
	st.Stats(func(key string, val string, cookie any) {
		fmt.Fprintf(cookie.(*bytes.Buffer), "%s %s\n", key, val)
	}, &buf)
	if buf.Len() == 0 { return errors.New("no stats, allocator closed") }
	return atomic.WriteFile(path, &buf)
}

// bench mixes sets and gets over a key space half the size of n, so later gets mostly hit
// and a tight limit forces evictions.
func bench(st *store.Store, n int, log *slog.Logger) {
	rng := rand.New(rand.NewPCG(uint64(n), 0x5eed))
	keys := max(n/2, 1)
	val := bytes.Repeat([]byte{'v'}, 4096)

	var sets, hits, misses, fails int
	start := time.Now()
	for range n {
		key := []byte("key:" + strconv.Itoa(rng.IntN(keys)))
		if rng.IntN(10) < 7 {
			err := st.Set(key, val[:1+rng.IntN(len(val)-1)], 0)
			if err != nil {
				fails++
				continue
			}
			sets++
			continue
		}
		if _, _, ok := st.Get(key); ok {
			hits++
		} else {
			misses++
		}
	}
	took := time.Since(start)

	var malloced string
	st.Stats(func(key string, val string, cookie any) {
		if key == "total_malloced" {
			v, _ := strconv.ParseUint(val, 10, 64)
			malloced = util.FormatBytes(v)
		}
	}, nil)

	log.Info("Bench done", "ops", n, "took", took, "ops/s", int(float64(n)/took.Seconds()),
		"sets", sets, "failed", fails, "hits", hits, "misses", misses, "items", st.Len(),
		"malloced", malloced)
}
