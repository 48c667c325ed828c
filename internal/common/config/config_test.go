package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_A", "va")
	in := []byte("a: ${X_A:da}\nb: ${X_B:db}")
	out := resolveEnv(in)
	assert.Contains(t, string(out), "a: va")
	assert.Contains(t, string(out), "b: db")
}

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })
	_ = os.Chdir(tmp)

	t.Setenv("X_REDIS_PASSWORD", "secret")
	yaml := `
session:
  type: redis
  prefix: "app:"
  ttl: 5s
  redis:
    addr: ${X_REDIS_ADDR:10.0.0.1:6379}
    password: ${X_REDIS_PASSWORD}
    db: 15
http:
  addr: ":9090"
logger:
  level: debug
`
	file := filepath.Join(tmp, "redsess.yaml")
	assert.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	cfg, path, err := LoadConfig("redsess.yaml")
	assert.NoError(t, err)
	realFile, _ := filepath.EvalSymlinks(file)
	realPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, realFile, realPath)

	assert.Equal(t, "redis", cfg.Session.Type)
	assert.Equal(t, "app:", cfg.Session.KeyPrefix())
	assert.Equal(t, 5*time.Second, cfg.Session.TTL)
	assert.Equal(t, "10.0.0.1:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, "secret", cfg.Session.Redis.Password)
	assert.Equal(t, 15, cfg.Session.Redis.DB)
	assert.Equal(t, "single", cfg.Session.Redis.ClusterType)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_Defaults(t *testing.T) {
	tmp := t.TempDir()
	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })
	_ = os.Chdir(tmp)

	file := filepath.Join(tmp, "empty.yaml")
	assert.NoError(t, os.WriteFile(file, []byte("{}\n"), 0o644))

	cfg, _, err := LoadConfig(file)
	assert.NoError(t, err)
	assert.Equal(t, "redis", cfg.Session.Type)
	assert.Nil(t, cfg.Session.Prefix)
	assert.Equal(t, "sess:", cfg.Session.KeyPrefix())
	assert.Equal(t, time.Duration(0), cfg.Session.TTL)
	assert.Equal(t, "127.0.0.1:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "redsess", cfg.Metrics.Namespace)
}

func TestLoadConfig_EmptyPrefix(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bare.yaml")
	assert.NoError(t, os.WriteFile(file, []byte("session:\n  prefix: \"\"\n"), 0o644))

	cfg, _, err := LoadConfig(file)
	assert.NoError(t, err)
	assert.NotNil(t, cfg.Session.Prefix)
	assert.Equal(t, "", cfg.Session.KeyPrefix())
}

func TestSessionConfig_KeyPrefix(t *testing.T) {
	empty, custom := "", "app:"
	assert.Equal(t, "sess:", SessionConfig{}.KeyPrefix())
	assert.Equal(t, "", SessionConfig{Prefix: &empty}.KeyPrefix())
	assert.Equal(t, "app:", SessionConfig{Prefix: &custom}.KeyPrefix())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NoError(t, os.WriteFile(bad, []byte("session: [unclosed"), 0o644))
	_, _, err = LoadConfig(bad)
	assert.Error(t, err)
}
