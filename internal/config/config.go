package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "config/local.yaml"

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	WS       WSConfig       `yaml:"ws"`
	Meetings MeetingsConfig `yaml:"meetings"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins    []string      `yaml:"allow_origins" env:"HTTP_ALLOW_ORIGINS" env-separator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

type WSConfig struct {
	ReadLimit  int64         `yaml:"read_limit" env:"WS_READ_LIMIT"`
	PingPeriod time.Duration `yaml:"ping_period" env:"WS_PING_PERIOD"`
	PongWait   time.Duration `yaml:"pong_wait" env:"WS_PONG_WAIT"`
	WriteWait  time.Duration `yaml:"write_wait" env:"WS_WRITE_WAIT"`
	SendBuffer int           `yaml:"send_buffer" env:"WS_SEND_BUFFER"`
}

// MeetingsConfig holds the settings new meetings start with unless the creator
// overrides them, plus the expiry sweep cadence.
type MeetingsConfig struct {
	MaxParticipants int           `yaml:"max_participants" env:"MEETINGS_MAX_PARTICIPANTS"`
	AllowJoin       *bool         `yaml:"allow_join"`
	RequireApproval bool          `yaml:"require_approval" env:"MEETINGS_REQUIRE_APPROVAL"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env:"MEETINGS_SWEEP_INTERVAL"`
	ListLimitMax    int           `yaml:"list_limit_max" env:"MEETINGS_LIST_LIMIT_MAX"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env:"WEBRTC_STUN_SERVERS" env-separator:","`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

type AuditConfig struct {
	Buffer int `yaml:"buffer" env:"AUDIT_BUFFER"`
}

func MustLoad(flagPath string) *Config {
	cfg, err := Load(fetchConfigPath(flagPath))
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path and applies env overrides. A missing file
// at the default path falls back to env and defaults only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(configPath); err != nil {
		if !os.IsNotExist(err) || configPath != defaultConfigPath {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func fetchConfigPath(flagPath string) string {
	res := flagPath

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = defaultConfigPath
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"*"}
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 64 << 10
	}
	if c.WS.PongWait <= 0 {
		c.WS.PongWait = 60 * time.Second
	}
	if c.WS.PingPeriod <= 0 || c.WS.PingPeriod >= c.WS.PongWait {
		c.WS.PingPeriod = c.WS.PongWait * 9 / 10
	}
	if c.WS.WriteWait <= 0 {
		c.WS.WriteWait = 10 * time.Second
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}

	if c.Meetings.MaxParticipants <= 0 {
		c.Meetings.MaxParticipants = 50
	}
	if c.Meetings.AllowJoin == nil {
		allow := true
		c.Meetings.AllowJoin = &allow
	}
	if c.Meetings.SweepInterval <= 0 {
		c.Meetings.SweepInterval = time.Minute
	}
	if c.Meetings.ListLimitMax <= 0 {
		c.Meetings.ListLimitMax = 100
	}

	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}

	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = 256
	}
}
