// Package config loads planner, storage and logging settings from a config
// file and JANUS_ environment variables.
package config

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

// EnvPrefix prefixes every environment variable Load reads, e.g.
// JANUS_PLANNER_MAX_TASKS.
const EnvPrefix = "JANUS"

// Config is the complete runtime configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Planner PlannerConfig `mapstructure:"planner"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig selects the key-value engine.
type StoreConfig struct {
	Engine string `mapstructure:"engine"` // "memory" or "badger"
	Path   string `mapstructure:"path"`   // badger directory; empty runs badger in memory
}

// PlannerConfig mirrors planner.Configuration.
type PlannerConfig struct {
	MaxTasks      int           `mapstructure:"max_tasks"`
	DisabledRules []string      `mapstructure:"disabled_rules"`
	IndexMatching bool          `mapstructure:"index_matching"`
	Concurrency   int           `mapstructure:"concurrency"`
	CacheSize     int           `mapstructure:"cache_size"` // 0 disables the plan cache
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig controls the slog logger and event tracing.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // text or json
	Events bool   `mapstructure:"events"` // log planner and executor events
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	d := planner.DefaultConfiguration()
	return Config{
		Store: StoreConfig{Engine: "memory"},
		Planner: PlannerConfig{
			MaxTasks:      d.MaxTaskCount,
			IndexMatching: d.EnableIndexMatching,
			CacheTTL:      5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("store.engine", d.Store.Engine)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("planner.max_tasks", d.Planner.MaxTasks)
	v.SetDefault("planner.disabled_rules", []string{})
	v.SetDefault("planner.index_matching", d.Planner.IndexMatching)
	v.SetDefault("planner.concurrency", d.Planner.Concurrency)
	v.SetDefault("planner.cache_size", d.Planner.CacheSize)
	v.SetDefault("planner.cache_ttl", d.Planner.CacheTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.events", d.Log.Events)
}

// Load reads file, when given, then the environment, then overrides, each
// taking precedence over the one before. Override keys use the dotted
// form, e.g. "store.path".
func Load(file string, overrides map[string]any) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", file)
		}
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	return c, c.Validate()
}

// Validate rejects settings no component can honor.
func (c Config) Validate() error {
	switch c.Store.Engine {
	case "memory", "badger":
	default:
		return errors.Newf("unknown store engine %q", c.Store.Engine)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf("unknown log format %q", c.Log.Format)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Planner.MaxTasks < 0 {
		return errors.Newf("planner.max_tasks must not be negative, got %d", c.Planner.MaxTasks)
	}
	return nil
}

// PlannerConfiguration builds the planner configuration. Events go to
// collector, which may be nil.
func (c Config) PlannerConfiguration(collector *annotations.Collector) planner.Configuration {
	pc := planner.Configuration{
		MaxTaskCount:        c.Planner.MaxTasks,
		DisabledRules:       c.Planner.DisabledRules,
		EnableIndexMatching: c.Planner.IndexMatching,
		MaxConcurrentPlans:  c.Planner.Concurrency,
		Annotations:         collector,
	}
	if c.Planner.CacheSize > 0 {
		pc.Cache = planner.NewPlanCache(c.Planner.CacheSize, c.Planner.CacheTTL)
	}
	return pc
}

// OpenStore opens the configured engine.
func (c Config) OpenStore() (storage.Store, error) {
	if c.Store.Engine == "badger" {
		s, err := storage.NewBadgerStore(c.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return storage.NewMemStore(), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, errors.Wrapf(err, "log level %q", l.Level)
	}
	return level, nil
}

// Logger returns a slog logger writing to w in the configured format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Log.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Collector returns a collector logging events through logger, or nil when
// event logging is off. extra handlers, such as a metrics handler, receive
// every event either way.
func (c Config) Collector(logger *slog.Logger, extra ...annotations.Handler) *annotations.Collector {
	var h annotations.Handler
	if c.Log.Events {
		h = annotations.SlogHandler(logger)
	}
	handler := annotations.Multi(append([]annotations.Handler{h}, extra...)...)
	if handler == nil {
		return nil
	}
	return annotations.NewCollector(handler)
}
