package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/andy6609/tickchat/internal/protocol"
)

const envPrefix = "CHAT"

// Config holds the runtime settings of the chat server. Zero values are
// replaced with defaults by Sanitize.
type Config struct {
	// Listen address for the chat protocol.
	Addr string `mapstructure:"addr"`
	// Listen address of the admin endpoint (metrics, health, websocket).
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Path on the admin endpoint that accepts websocket clients. Empty disables it.
	WSPath string `mapstructure:"ws_path"`

	MaxContentLength int     `mapstructure:"max_content_length"`
	InitialCapacity  int     `mapstructure:"initial_capacity"`
	GrowthFactor     float64 `mapstructure:"growth_factor"`
	// Upper bound on table size. 0 means unbounded.
	MaxSlots int `mapstructure:"max_slots"`

	TickInterval time.Duration `mapstructure:"tick_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	OutboxSize   int           `mapstructure:"outbox_size"`

	MaxUsernameLength int `mapstructure:"max_username_length"`
	// Messages per second allowed per connection. 0 disables limiting.
	MessageRate  float64 `mapstructure:"message_rate"`
	MessageBurst int     `mapstructure:"message_burst"`

	LogLevel string `mapstructure:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		MetricsAddr:       ":9090",
		WSPath:            "/ws",
		MaxContentLength:  protocol.DefaultMaxContentLength,
		InitialCapacity:   8,
		GrowthFactor:      1.8,
		MaxSlots:          0,
		TickInterval:      50 * time.Millisecond,
		WriteTimeout:      5 * time.Second,
		OutboxSize:        32,
		MaxUsernameLength: 32,
		MessageRate:       0,
		MessageBurst:      5,
		LogLevel:          "info",
	}
}

// Sanitize fills unset or out of range fields with defaults.
func (c Config) Sanitize() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = def.MaxContentLength
	}
	// Slot 0 is always taken by the listener, so one user needs two slots.
	if c.InitialCapacity < 2 {
		c.InitialCapacity = def.InitialCapacity
	}
	if c.GrowthFactor < 1 {
		c.GrowthFactor = def.GrowthFactor
	}
	if c.MaxSlots < 0 {
		c.MaxSlots = 0
	}
	if c.MaxSlots > 0 && c.MaxSlots < c.InitialCapacity {
		c.InitialCapacity = c.MaxSlots
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = def.OutboxSize
	}
	if c.MaxUsernameLength <= 0 {
		c.MaxUsernameLength = def.MaxUsernameLength
	}
	if c.MessageRate < 0 {
		c.MessageRate = 0
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = def.MessageBurst
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return c
}

// SlogLevel maps LogLevel onto a slog level. Unknown names yield info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// flagKeys maps config keys to the command line flags that may override them.
var flagKeys = map[string]string{
	"addr":                "addr",
	"metrics_addr":        "metrics-addr",
	"ws_path":             "ws-path",
	"max_content_length":  "max-content-length",
	"initial_capacity":    "initial-capacity",
	"growth_factor":       "growth-factor",
	"max_slots":           "max-slots",
	"tick_interval":       "tick-interval",
	"write_timeout":       "write-timeout",
	"outbox_size":         "outbox-size",
	"max_username_length": "max-username-length",
	"message_rate":        "message-rate",
	"message_burst":       "message-burst",
	"log_level":           "log-level",
}

// LoadConfig resolves the configuration from, in increasing priority,
// defaults, the YAML file at path (optional), CHAT_* environment variables
// and any flags in flags that were set explicitly.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("addr", def.Addr)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("ws_path", def.WSPath)
	v.SetDefault("max_content_length", def.MaxContentLength)
	v.SetDefault("initial_capacity", def.InitialCapacity)
	v.SetDefault("growth_factor", def.GrowthFactor)
	v.SetDefault("max_slots", def.MaxSlots)
	v.SetDefault("tick_interval", def.TickInterval)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("outbox_size", def.OutboxSize)
	v.SetDefault("max_username_length", def.MaxUsernameLength)
	v.SetDefault("message_rate", def.MessageRate)
	v.SetDefault("message_burst", def.MessageBurst)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Sanitize(), nil
}
