package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Limits struct {
		MaxRooms           int     `yaml:"maxRooms"`
		MaxPlayersPerRoom  int     `yaml:"maxPlayersPerRoom"`
		MaxConnsPerAddress int     `yaml:"maxConnsPerAddress"`
		RatePerSec         float64 `yaml:"ratePerSec"`
		RateBurst          int     `yaml:"rateBurst"`
	} `yaml:"limits"`
	Timers struct {
		HeartbeatInterval string `yaml:"heartbeatInterval"`
		SweepInterval     string `yaml:"sweepInterval"`
		IdleTTL           string `yaml:"idleTTL"`
		GraceTTL          string `yaml:"graceTTL"`
		MaxRoomAge        string `yaml:"maxRoomAge"`
	} `yaml:"timers"`
	Scoring struct {
		BonusFactor float64 `yaml:"bonusFactor"`
	} `yaml:"scoring"`
	Auth struct {
		// Bearer token -> host identity. Account management is out of
		// scope; deployments supply the mapping or a real verifier.
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"auth"`
}

// Load reads YAML config from path and applies environment overrides for
// the capacity and timing knobs.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	envInt("MAX_ROOMS", &c.Limits.MaxRooms)
	envInt("MAX_PLAYERS_PER_ROOM", &c.Limits.MaxPlayersPerRoom)
	envInt("MAX_CONNECTIONS_PER_IP", &c.Limits.MaxConnsPerAddress)
	envStr("HEARTBEAT_INTERVAL", &c.Timers.HeartbeatInterval)
	envStr("SWEEP_INTERVAL", &c.Timers.SweepInterval)
	envStr("IDLE_TTL", &c.Timers.IdleTTL)
	envStr("GRACE_TTL", &c.Timers.GraceTTL)
	envStr("MAX_ROOM_AGE", &c.Timers.MaxRoomAge)
}

func envInt(name string, dst *int) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func envStr(name string, dst *string) {
	if raw := os.Getenv(name); raw != "" {
		*dst = raw
	}
}

// TTLDuration parses a duration string or returns the fallback if empty or
// invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
