// Package config loads the cache settings: defaults, then a JSON-with-comments file, then
// whatever the command line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	c "slabcache/internal"
	"slabcache/internal/slabs"

	"github.com/tailscale/hujson"
)

var (
	ErrConfigRead		= errors.New("config: can't read file")
	ErrConfigInvalid	= errors.New("config: invalid")
	ErrBadSize		= errors.New("config: bad size")
)

// Sizes are strings with an optional b/k/m/g suffix, "64m" or "1048576".
type Config struct {
	MemLimit	string	`json:"mem_limit"`
	GrowthFactor	float64	`json:"growth_factor"`
	Prealloc	bool	`json:"prealloc"`
	PageSize	string	`json:"page_size"`
	ChunkMin	int	`json:"chunk_min"`
	Reserved	string	`json:"reserved"`
	ForceReclaim	bool	`json:"force_reclaim"`
	MinFreeRatio	float64	`json:"min_free_ratio"`
	LogLevel	string	`json:"log_level"`
	StatsFile	string	`json:"stats_file"`
}

func Default() Config {
	return Config{
		MemLimit: 	"64m",
		GrowthFactor: 	c.DEFAULT_FACTOR,
		PageSize: 	"1m",
		ChunkMin: 	c.CHUNK_SIZE_MIN,
		Reserved: 	"0",
		LogLevel: 	"info",
	}
}

// Load reads path over the defaults. Fields missing from the file keep their default.
// An empty path just returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" { return cfg, nil }

	data, err := os.ReadFile(path)
	if err != nil { return Config{}, fmt.Errorf("%w %s: %w", ErrConfigRead, path, err) }

	err = Parse(data, &cfg)
	if err != nil { return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err) }

	err = cfg.Validate()
	if err != nil { return Config{}, err }
	return cfg, nil
}

// Parse decodes JSONC into cfg, leaving fields the document doesn't name alone.
func Parse(data []byte, cfg *Config) error {
	std, err := hujson.Standardize(data)
	if err != nil { return fmt.Errorf("invalid JSONC: %w", err) }

	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	err = dec.Decode(cfg)
	if err != nil { return fmt.Errorf("invalid JSON: %w", err) }
	return nil
}

func (cfg Config) Validate() error {
	for _, s := range []struct{ name, val string }{
		{"mem_limit", cfg.MemLimit},
		{"page_size", cfg.PageSize},
		{"reserved", cfg.Reserved},
	} {
		_, err := ParseSize(s.val)
		if err != nil { return fmt.Errorf("%w: %s: %w", ErrConfigInvalid, s.name, err) }
	}
	if !(cfg.GrowthFactor > 1.0) {
		return fmt.Errorf("%w: growth_factor must be > 1.0, got %v", ErrConfigInvalid, cfg.GrowthFactor)
	}
	if cfg.ChunkMin < 0 {
		return fmt.Errorf("%w: chunk_min %d", ErrConfigInvalid, cfg.ChunkMin)
	}
	if cfg.MinFreeRatio < 0 || cfg.MinFreeRatio > 1 {
		return fmt.Errorf("%w: min_free_ratio %v not in [0, 1]", ErrConfigInvalid, cfg.MinFreeRatio)
	}
	_, err := cfg.Level()
	if err != nil { return fmt.Errorf("%w: log_level: %w", ErrConfigInvalid, err) }
	return nil
}

func (cfg Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(cfg.LogLevel))
	return l, err
}

// Options turns a validated config into allocator options.
func (cfg Config) Options(log *slog.Logger) (slabs.Options, error) {
	limit, err := ParseSize(cfg.MemLimit)
	if err != nil { return slabs.Options{}, err }
	page, err := ParseSize(cfg.PageSize)
	if err != nil { return slabs.Options{}, err }
	rsvd, err := ParseSize(cfg.Reserved)
	if err != nil { return slabs.Options{}, err }

	return slabs.Options{
		Limit: 		limit,
		Factor: 	cfg.GrowthFactor,
		Prealloc: 	cfg.Prealloc,
		PageSize: 	int(page),
		ChunkMin: 	cfg.ChunkMin,
		Reserved: 	rsvd,
		Policy: 	slabs.MostFreePolicy{MinFreeRatio: cfg.MinFreeRatio},
		ForceReclaim: 	cfg.ForceReclaim,
		Log: 		log,
	}, nil
}

// ParseSize reads "512", "4k", "64m", "1g". Suffixes are powers of two.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" { return 0, fmt.Errorf("%w: empty", ErrBadSize) }

	num, shift := s, 0
	if last := s[len(s)-1]; last < '0' || last > '9' {
		switch last | 0x20 {
		case 'b':
			shift = 0
		case 'k':
			shift = 10
		case 'm':
			shift = 20
		case 'g':
			shift = 30
		default:
			return 0, fmt.Errorf("%w: %q: only b, k, m, g suffixes", ErrBadSize, s)
		}
		num = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(num, 10, 64-shift)
	if err != nil { return 0, fmt.Errorf("%w: %q: %w", ErrBadSize, s, err) }
	return n << shift, nil
}
