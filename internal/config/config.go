package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ORCHESTRATOR"

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	Collaborators struct {
		TranscriptionURL string        `mapstructure:"transcription_url"`
		MinutesURL       string        `mapstructure:"minutes_url"`
		FilesURL         string        `mapstructure:"files_url"`
		HealthTimeout    time.Duration `mapstructure:"health_timeout"`
	} `mapstructure:"collaborators"`
	Engine struct {
		MaxRetries           int           `mapstructure:"max_retries"`
		RetryBackoff         time.Duration `mapstructure:"retry_backoff"`
		QueueSize            int           `mapstructure:"queue_size"`
		FailFastClientErrors bool          `mapstructure:"fail_fast_client_errors"`
	} `mapstructure:"engine"`
	Store struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`
	Events struct {
		Driver       string `mapstructure:"driver"`
		Buffer       int    `mapstructure:"buffer"`
		RedisAddress string `mapstructure:"redis_address"`
		Channel      string `mapstructure:"channel"`
	} `mapstructure:"events"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// legacyEnv keeps the variable names the collaborator deployment scripts
// already export.
var legacyEnv = map[string]string{
	"collaborators.transcription_url": "TRANSCRIPTION_SERVICE_URL",
	"collaborators.minutes_url":       "MEETING_MINUTES_SERVICE_URL",
	"collaborators.files_url":         "FILE_MANAGEMENT_SERVICE_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":5000")
	v.SetDefault("collaborators.transcription_url", "http://localhost:5001")
	v.SetDefault("collaborators.minutes_url", "http://localhost:5002")
	v.SetDefault("collaborators.files_url", "http://localhost:5003")
	v.SetDefault("collaborators.health_timeout", 2*time.Second)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_backoff", 3*time.Second)
	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.fail_fast_client_errors", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("events.driver", "memory")
	v.SetDefault("events.buffer", 500)
	v.SetDefault("events.redis_address", "localhost:6379")
	v.SetDefault("events.channel", "workflow:events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from path (or config.yaml in the working
// directory or ./config when path is empty) and the environment. A missing
// default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries must be >= 0, got %d", c.Engine.MaxRetries))
	}
	if c.Engine.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("engine.retry_backoff must be >= 0, got %s", c.Engine.RetryBackoff))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.queue_size must be > 0, got %d", c.Engine.QueueSize))
	}
	if c.Collaborators.HealthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("collaborators.health_timeout must be > 0"))
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Events.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown events.driver %q", c.Events.Driver))
	}
	return errors.Join(errs...)
}
