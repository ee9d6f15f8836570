package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/notify"
	"gopkg.in/yaml.v3"
)

const (
	ModeLocal = "local"
	ModeRedis = "redis"
	ModeNone  = "none"

	defaultTimeout = 5 * time.Second
)

type Config struct {
	DefaultTree      string       `yaml:"default_tree,omitempty" validate:"omitempty,treeid"`
	LogLevel         string       `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat        string       `yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	RequestTimeoutMS int          `yaml:"request_timeout_ms,omitempty" validate:"gte=0"`
	Notify           NotifyConfig `yaml:"notify,omitempty"`
	HTTP             HTTPConfig   `yaml:"http,omitempty"`
}

type NotifyConfig struct {
	Mode     string `yaml:"mode,omitempty" validate:"omitempty,oneof=local redis none"`
	RedisURL string `yaml:"redis_url,omitempty" validate:"omitempty,url"`
	Channel  string `yaml:"channel,omitempty"`
	Watch    bool   `yaml:"watch,omitempty"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" validate:"dive,required"`
}

func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func Save(dataDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dataDir, "config.yaml")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides file settings with SKILLMAP_* environment variables.
func (c *Config) ApplyEnv() {
	c.LogLevel = getEnv("SKILLMAP_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("SKILLMAP_LOG_FORMAT", c.LogFormat)
	c.RequestTimeoutMS = getEnvInt("SKILLMAP_REQUEST_TIMEOUT_MS", c.RequestTimeoutMS)
	c.Notify.Mode = getEnv("SKILLMAP_NOTIFY_MODE", c.Notify.Mode)
	c.Notify.RedisURL = getEnv("SKILLMAP_REDIS_URL", c.Notify.RedisURL)
	c.Notify.Watch = getEnvBool("SKILLMAP_NOTIFY_WATCH", c.Notify.Watch)
	c.HTTP.Addr = getEnv("SKILLMAP_HTTP_ADDR", c.HTTP.Addr)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("treeid", func(fl validator.FieldLevel) bool {
		return id.Valid(fl.Field().String())
	})
	return v
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fieldError(e))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.NotifyMode() == ModeRedis && c.Notify.RedisURL == "" {
		return fmt.Errorf("invalid config: notify.redis_url is required when notify.mode is redis")
	}
	return nil
}

func fieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	field = strings.TrimPrefix(field, "config.")
	switch e.Tag() {
	case "treeid":
		return fmt.Sprintf("%s %q is not a valid tree id", field, e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
	}
}

func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) NotifyMode() string {
	if c.Notify.Mode == "" {
		return ModeLocal
	}
	return c.Notify.Mode
}

func (c *Config) Channel() string {
	if c.Notify.Channel == "" {
		return notify.DefaultChannel
	}
	return c.Notify.Channel
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
