package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DriverNative, cfg.Library.Driver)
	assert.Equal(t, 2, cfg.Library.SessionPoolSize)
	assert.Equal(t, "rgba", cfg.Image.Format)
	assert.Equal(t, 1000, cfg.Image.MaxDim)
	assert.Equal(t, 40_000_000, cfg.Image.MaxPixels)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Storage.ResultTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Log.MaxAge)
	require.NoError(t, cfg.Validate())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cryptonet.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
[library]
working_dir = "/var/lib/cryptonet"
driver = "shim"
session_pool_size = 4

[server]
shutdown_timeout = "30s"

[log]
format = "console"
`)
	t.Setenv("CRYPTONET_LIBRARY_SESSION_POOL_SIZE", "8")
	t.Setenv("CRYPTONET_STORAGE_RESULT_TTL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cryptonet", cfg.Library.WorkingDir)
	assert.Equal(t, DriverShim, cfg.Library.Driver)
	assert.Equal(t, 8, cfg.Library.SessionPoolSize)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 90*time.Second, cfg.Storage.ResultTTL)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "[library]\nworking_directory = \"x\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "working_directory")
}

func TestApplyEnvBadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(map[string]string{"CRYPTONET_SERVER_MAX_UPLOAD_BYTES": "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxUploadBytes")
}

func TestApplyEnvSections(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(map[string]string{
		"CRYPTONET_LIBRARY_DRIVER":      "shim",
		"CRYPTONET_IMAGE_MAX_PIXELS":    "1000000",
		"CRYPTONET_SERVER_GRPC_ADDR":    ":9090",
		"CRYPTONET_LOG_ROTATION_TIME":   "1h",
		"CRYPTONET_STORAGE_REDIS_ADDR":  "redis:6379",
		"LIBRARY_DRIVER":                "native",
		"CRYPTONET_LIBRARY_UNKNOWN_KEY": "ignored",
	}))
	assert.Equal(t, DriverShim, cfg.Library.Driver)
	assert.Equal(t, 1_000_000, cfg.Image.MaxPixels)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, time.Hour, cfg.Log.RotationTime)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "rgba", cfg.Image.Format)
	assert.Equal(t, 1000, cfg.Image.MaxDim)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":      func(c *Config) { c.Library.Driver = "cuda" },
		"pool":        func(c *Config) { c.Library.SessionPoolSize = 0 },
		"settings":    func(c *Config) { c.Library.Settings = "{" },
		"format":      func(c *Config) { c.Image.Format = "yuv" },
		"upload":      func(c *Config) { c.Server.MaxUploadBytes = 0 },
		"pixels":      func(c *Config) { c.Image.MaxPixels = 0 },
		"level":       func(c *Config) { c.Log.Level = "chatty" },
		"log format":  func(c *Config) { c.Log.Format = "xml" },
		"working dir": func(c *Config) { c.Library.WorkingDir = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
