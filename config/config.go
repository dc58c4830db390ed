// Package config loads lanenet settings from defaults, an optional config
// file, a .env file and LANENET_* environment variables, in rising priority.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
)

const EnvPrefix = "LANENET"

type Net struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Address         string        `mapstructure:"address"`
	ConnectTimeout  time.Duration `mapstructure:"connectTimeout" validate:"gt=0"`
	ConnectAttempts int           `mapstructure:"connectAttempts" validate:"gte=1"`
	ConnectBackoff  time.Duration `mapstructure:"connectBackoff" validate:"gte=0"`
	AckTimeout      time.Duration `mapstructure:"ackTimeout" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"maxRetries" validate:"gte=0"`
	ReorderLimit    int           `mapstructure:"reorderLimit" validate:"gte=1"`
	HistorySize     int           `mapstructure:"historySize" validate:"gte=1"`
	MaxFrameSize    int           `mapstructure:"maxFrameSize" validate:"gte=1024"`
	GapTimeout      time.Duration `mapstructure:"gapTimeout" validate:"gt=0"`
	MaxGapRequests  int           `mapstructure:"maxGapRequests" validate:"gte=0"`
}

type Session struct {
	SnapshotHz        float64       `mapstructure:"snapshotHz" validate:"gt=0"`
	FullStateInterval int           `mapstructure:"fullStateInterval" validate:"gte=1"`
	SpawnRate         float64       `mapstructure:"spawnRate" validate:"gt=0"`
	SpawnBurst        int           `mapstructure:"spawnBurst" validate:"gte=1"`
	ErrorCountdown    time.Duration `mapstructure:"errorCountdown" validate:"gte=0"`
	TickHz            float64       `mapstructure:"tickHz" validate:"gt=0,lte=1000"`
}

type Store struct {
	// Path of the SQLite results database. Empty disables result storage.
	Path string `mapstructure:"path"`
}

type Config struct {
	LogLevel string     `mapstructure:"logLevel" validate:"oneof=TRACE DEBUG INFO WARN ERROR"`
	LogFile  string     `mapstructure:"logFile"`
	Net      Net        `mapstructure:"net"`
	Session  Session    `mapstructure:"session"`
	Game     sim.Config `mapstructure:"game"`
	Store    Store      `mapstructure:"store"`

	// RosterFile is a JSON unit table. It is read outside viper, which
	// lowercases map keys and would mangle unit type names.
	RosterFile string     `mapstructure:"rosterFile"`
	Roster     sim.Roster `mapstructure:"-" validate:"min=1"`
}

// New returns a viper instance holding every default.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logFile", "")

	v.SetDefault("net.port", lanenet.DefaultPort)
	v.SetDefault("net.address", "127.0.0.1")
	v.SetDefault("net.connectTimeout", lanenet.DefaultConnectTimeout)
	v.SetDefault("net.connectAttempts", lanenet.DefaultConnectAttempts)
	v.SetDefault("net.connectBackoff", lanenet.DefaultConnectBackoff)
	v.SetDefault("net.ackTimeout", lanenet.DefaultAckTimeout)
	v.SetDefault("net.maxRetries", lanenet.DefaultMaxRetries)
	v.SetDefault("net.reorderLimit", lanenet.DefaultReorderLimit)
	v.SetDefault("net.historySize", lanenet.DefaultHistorySize)
	v.SetDefault("net.maxFrameSize", lanenet.DefaultMaxFrameSize)
	v.SetDefault("net.gapTimeout", lanenet.DefaultGapTimeout)
	v.SetDefault("net.maxGapRequests", lanenet.DefaultMaxGapRequests)

	v.SetDefault("session.snapshotHz", lanenet.DefaultSnapshotHz)
	v.SetDefault("session.fullStateInterval", lanenet.DefaultFullStateInterval)
	v.SetDefault("session.spawnRate", lanenet.DefaultSpawnRate)
	v.SetDefault("session.spawnBurst", lanenet.DefaultSpawnBurst)
	v.SetDefault("session.errorCountdown", lanenet.DefaultErrorCountdown)
	v.SetDefault("session.tickHz", 60)

	game := sim.DefaultConfig()
	v.SetDefault("game.timeLimit", game.TimeLimit)
	v.SetDefault("game.spawnCost", game.SpawnCost)
	v.SetDefault("game.maxGauge", game.MaxGauge)
	v.SetDefault("game.gaugeRate", game.GaugeRate)
	v.SetDefault("game.maxUnits", game.MaxUnits)
	v.SetDefault("game.fieldWidth", game.FieldWidth)
	v.SetDefault("game.groundY", game.GroundY)
	v.SetDefault("game.castleHP", game.CastleHP)
	v.SetDefault("game.seed", 0)

	v.SetDefault("store.path", "lanenet.db")
	v.SetDefault("rosterFile", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a .env file if there is one, then the config file at path (or
// lanenet.yaml/json/toml in the working directory when path is empty), and
// decodes and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lanenet")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	cfg.Roster = sim.DefaultRoster()
	if cfg.RosterFile != "" {
		roster, err := loadRoster(cfg.RosterFile)
		if err != nil {
			return nil, err
		}
		cfg.Roster = roster
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func loadRoster(path string) (sim.Roster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading roster file: %w", err)
	}
	var roster sim.Roster
	if err := json.Unmarshal(b, &roster); err != nil {
		return nil, fmt.Errorf("error decoding roster file %s: %w", path, err)
	}
	return roster, nil
}

func (c *Config) ConnectPolicy() lanenet.ConnectPolicy {
	return lanenet.ConnectPolicy{
		Timeout:  c.Net.ConnectTimeout,
		Attempts: c.Net.ConnectAttempts,
		Backoff:  c.Net.ConnectBackoff,
	}
}

func (c *Config) AckPolicy() lanenet.AckPolicy {
	return lanenet.AckPolicy{
		Timeout:    c.Net.AckTimeout,
		MaxRetries: c.Net.MaxRetries,
	}
}

// ListenAddr is where a host listens: every interface on the configured port.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Net.Port))
}

// JoinAddr resolves the address a client dials. host may carry its own port.
func (c *Config) JoinAddr(host string) string {
	if host == "" {
		host = c.Net.Address
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Net.Port))
}

// TickInterval is the wall time between two session ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Session.TickHz)
}

// SessionOptions maps the network and session settings onto a Session.
func (c *Config) SessionOptions() []lanenet.SessionOption {
	return []lanenet.SessionOption{
		lanenet.WithSimulation(c.Game, c.Roster, nil),
		lanenet.WithConnectPolicy(c.ConnectPolicy()),
		lanenet.WithSnapshotRate(c.Session.SnapshotHz, c.Session.FullStateInterval),
		lanenet.WithSpawnLimit(c.Session.SpawnRate, c.Session.SpawnBurst),
		lanenet.WithErrorCountdown(c.Session.ErrorCountdown),
		lanenet.WithChannelOptions(lanenet.WithMaxFrameSize(c.Net.MaxFrameSize)),
		lanenet.WithConnOptions(
			lanenet.WithAckPolicy(c.AckPolicy()),
			lanenet.WithReorderLimit(c.Net.ReorderLimit),
			lanenet.WithHistorySize(c.Net.HistorySize),
			lanenet.WithGapPolicy(c.Net.GapTimeout, c.Net.MaxGapRequests),
		),
	}
}
