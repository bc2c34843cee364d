// Package config loads the service configuration: struct-tag defaults, then
// an optional TOML file, then CRYPTONET_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/mcuadros/go-defaults"
	"go.uber.org/zap/zapcore"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

// EnvPrefix prefixes every environment override. A field's variable is the
// prefix, its section and its key, upper-cased and joined with underscores:
// CRYPTONET_LIBRARY_WORKING_DIR, CRYPTONET_SERVER_HTTP_ADDR, ...
const EnvPrefix = "CRYPTONET"

const (
	DriverNative = "native"
	DriverShim   = "shim"
)

type Config struct {
	Library LibraryConfig `toml:"library" envPrefix:"LIBRARY_"`
	Image   ImageConfig   `toml:"image" envPrefix:"IMAGE_"`
	Server  ServerConfig  `toml:"server" envPrefix:"SERVER_"`
	Storage StorageConfig `toml:"storage" envPrefix:"STORAGE_"`
	Log     LogConfig     `toml:"log" envPrefix:"LOG_"`
}

type LibraryConfig struct {
	WorkingDir string `toml:"working_dir" env:"WORKING_DIR" default:"./cryptonet-data"`
	// Driver is "native" for the linked library or "shim" for the
	// in-process stand-in.
	Driver string `toml:"driver" env:"DRIVER" default:"native"`
	// Settings is the JSON object every session is initialized with.
	Settings        string `toml:"settings" env:"SETTINGS" default:"{}"`
	SessionPoolSize int    `toml:"session_pool_size" env:"SESSION_POOL_SIZE" default:"2"`
}

type ImageConfig struct {
	Format string `toml:"format" env:"FORMAT" default:"rgba"`
	MaxDim int    `toml:"max_dim" env:"MAX_DIM" default:"1000"`
	// MaxPixels caps the canvas an upload may declare, checked before the
	// bitmap is allocated.
	MaxPixels int `toml:"max_pixels" env:"MAX_PIXELS" default:"40000000"`
}

type ServerConfig struct {
	HTTPAddr        string        `toml:"http_addr" env:"HTTP_ADDR" default:":8080"`
	GRPCAddr        string        `toml:"grpc_addr" env:"GRPC_ADDR"`
	MaxUploadBytes  int64         `toml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" default:"10485760"`
	JWTSecret       string        `toml:"jwt_secret" env:"JWT_SECRET"`
	JWTAudience     string        `toml:"jwt_audience" env:"JWT_AUDIENCE"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

type StorageConfig struct {
	// DatabaseDSN enables the postgres audit log when set.
	DatabaseDSN string `toml:"database_dsn" env:"DATABASE_DSN"`
	// RedisAddr moves the result cache to redis when set.
	RedisAddr string        `toml:"redis_addr" env:"REDIS_ADDR"`
	ResultTTL time.Duration `toml:"result_ttl" env:"RESULT_TTL" default:"5m"`
}

type LogConfig struct {
	Level        string        `toml:"level" env:"LEVEL" default:"info"`
	Format       string        `toml:"format" env:"FORMAT" default:"json"`
	File         string        `toml:"file" env:"FILE"`
	RotationTime time.Duration `toml:"rotation_time" env:"ROTATION_TIME" default:"24h"`
	MaxAge       time.Duration `toml:"max_age" env:"MAX_AGE" default:"168h"`
}

// Default returns a configuration holding only the struct-tag defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration from defaults, the TOML file at path (skipped
// when path is empty) and the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(filepath.Clean(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown keys %v", undecoded)
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environ, a map of variable names to values.
// A nil map reads the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	err := env.ParseWithOptions(c, env.Options{
		Prefix:      EnvPrefix + "_",
		Environment: environ,
	})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Library.WorkingDir == "" {
		errs = append(errs, errors.New("library.working_dir is required"))
	}
	switch c.Library.Driver {
	case DriverNative, DriverShim:
	default:
		errs = append(errs, fmt.Errorf("library.driver must be %q or %q, got %q", DriverNative, DriverShim, c.Library.Driver))
	}
	if c.Library.Settings != "" && !json.Valid([]byte(c.Library.Settings)) {
		errs = append(errs, errors.New("library.settings is not valid JSON"))
	}
	if c.Library.SessionPoolSize < 1 {
		errs = append(errs, fmt.Errorf("library.session_pool_size must be at least 1, got %d", c.Library.SessionPoolSize))
	}
	if cryptonet.ImageFormat(c.Image.Format).Channels() == 0 {
		errs = append(errs, fmt.Errorf("image.format %q is not one of rgba, rgbx, rgb, bgr, gray", c.Image.Format))
	}
	if c.Image.MaxDim < 0 {
		errs = append(errs, errors.New("image.max_dim must not be negative"))
	}
	if c.Image.MaxPixels < 1 {
		errs = append(errs, errors.New("image.max_pixels must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Storage.ResultTTL <= 0 {
		errs = append(errs, errors.New("storage.result_ttl must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
