package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	PolicyReplace = "replace"
	PolicyReject  = "reject"

	defaultJWTSecret = "change-me-in-production"
)

type Config struct {
	Environment string          `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string          `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP        HTTPConfig      `yaml:"http"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	Auth        AuthConfig      `yaml:"auth"`
	Redis       RedisConfig     `yaml:"redis"`
	WebRTC      WebRTCConfig    `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
	StaticDir       string        `yaml:"static_dir" env:"STATIC_DIR" env-default:"static"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type WebSocketConfig struct {
	MaxMessageSize    int64         `yaml:"max_message_size" env:"WS_MAX_MESSAGE_SIZE" env-default:"65536"`
	SendBuffer        int           `yaml:"send_buffer" env:"WS_SEND_BUFFER" env-default:"256"`
	WriteWait         time.Duration `yaml:"write_wait" env:"WS_WRITE_WAIT" env-default:"10s"`
	PongWait          time.Duration `yaml:"pong_wait" env:"WS_PONG_WAIT" env-default:"60s"`
	RateLimit         float64       `yaml:"rate_limit" env:"WS_RATE_LIMIT" env-default:"50"`
	RateBurst         int           `yaml:"rate_burst" env:"WS_RATE_BURST" env-default:"100"`
	DuplicateIDPolicy string        `yaml:"duplicate_id_policy" env:"DUPLICATE_ID_POLICY" env-default:"replace"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me-in-production"`
	AdminPassword string        `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
}

type RedisConfig struct {
	Host      string        `yaml:"host" env:"REDIS_HOST"`
	Port      string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"signaling:"`
	TTL       time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"24h"`
}

type WebRTCConfig struct {
	STUNServers  []string `yaml:"stun_servers" env:"STUN_SERVERS" env-separator:"," env-default:"stun:stun.l.google.com:19302"`
	TURNServer   string   `yaml:"turn_server" env:"TURN_SERVER"`
	TURNUsername string   `yaml:"turn_username" env:"TURN_USERNAME"`
	TURNPassword string   `yaml:"turn_password" env:"TURN_PASSWORD"`
}

// Load reads configuration from the YAML file at path, if any, and then from
// the environment, which always wins.
func Load(path string) (*Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Address == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("websocket max message size must be positive"))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket send buffer must be positive"))
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	for _, origin := range c.HTTP.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("allowed origin %q must start with http:// or https://", origin))
		}
	}
	if c.WebSocket.RateLimit < 0 {
		errs = append(errs, errors.New("websocket rate limit must not be negative"))
	}
	switch c.WebSocket.DuplicateIDPolicy {
	case PolicyReplace, PolicyReject:
	default:
		errs = append(errs, fmt.Errorf("unknown duplicate id policy %q", c.WebSocket.DuplicateIDPolicy))
	}
	if c.AdminEnabled() && c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be changed when the admin API is enabled in production"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// AdminEnabled reports whether the operator API should be mounted.
func (c *Config) AdminEnabled() bool {
	return c.Auth.AdminPassword != ""
}

// RedisEnabled reports whether presence should be mirrored to Redis.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}
