package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	StaticPath    string        `mapstructure:"static_path"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	PongWait      time.Duration `mapstructure:"pong_wait"`
	WriteWait     time.Duration `mapstructure:"write_wait"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Secret        string        `mapstructure:"secret"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RoomMaxIdle   time.Duration `mapstructure:"room_max_idle"`
	LeaveGrace    time.Duration `mapstructure:"leave_grace"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("static_path", "./public")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("sweep_interval", "1h")
	v.SetDefault("room_max_idle", "1h")
	v.SetDefault("leave_grace", "1s")
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "15m")

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("allowed_origin", "CORS_ORIGIN")
	_ = v.BindEnv("secret", "SESSION_SECRET")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("origin", cfg.AllowedOrigin).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.AllowedOrigin == "":
		return errors.New("allowed_origin must not be empty")
	case c.PingPeriod >= c.PongWait:
		return errors.New("ping_period must be shorter than pong_wait")
	case c.SendBuffer < 1:
		return errors.New("send_buffer must be positive")
	case c.SweepInterval <= 0 || c.RoomMaxIdle <= 0 || c.LeaveGrace <= 0:
		return errors.New("sweep_interval, room_max_idle and leave_grace must be positive")
	case c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0:
		return errors.New("rate_limit needs positive requests and window")
	}
	return nil
}
