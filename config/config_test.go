package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lanenet "github.com/yulon/go-lanenet"
	"github.com/yulon/go-lanenet/sim"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, lanenet.DefaultPort, cfg.Net.Port)
	assert.Equal(t, lanenet.DefaultAckTimeout, cfg.Net.AckTimeout)
	assert.Equal(t, lanenet.DefaultMaxRetries, cfg.Net.MaxRetries)
	assert.Equal(t, lanenet.DefaultReorderLimit, cfg.Net.ReorderLimit)
	assert.Equal(t, lanenet.DefaultConnectPolicy(), cfg.ConnectPolicy())
	assert.Equal(t, lanenet.DefaultAckPolicy(), cfg.AckPolicy())
	assert.Equal(t, float64(lanenet.DefaultSnapshotHz), cfg.Session.SnapshotHz)
	assert.Equal(t, lanenet.DefaultFullStateInterval, cfg.Session.FullStateInterval)
	assert.Equal(t, lanenet.DefaultErrorCountdown, cfg.Session.ErrorCountdown)
	assert.Equal(t, sim.DefaultConfig(), cfg.Game)
	assert.Equal(t, sim.DefaultRoster(), cfg.Roster)
	assert.Equal(t, time.Second/60, cfg.TickInterval())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lanenet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
net:
  port: 6000
  ackTimeout: 150ms
session:
  snapshotHz: 30
game:
  timeLimit: 90s
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 6000, cfg.Net.Port)
	assert.Equal(t, 150*time.Millisecond, cfg.Net.AckTimeout)
	assert.Equal(t, 30.0, cfg.Session.SnapshotHz)
	assert.Equal(t, 90*time.Second, cfg.Game.TimeLimit)
	assert.Equal(t, lanenet.DefaultMaxRetries, cfg.Net.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lanenet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("net:\n  port: 6000\n"), 0o644))
	t.Setenv("LANENET_NET_PORT", "7000")
	t.Setenv("LANENET_NET_MAXRETRIES", "5")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Net.Port)
	assert.Equal(t, 5, cfg.Net.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("LANENET_NET_PORT", "0")
	_, err := Load(New(), "")
	assert.ErrorContains(t, err, "invalid config")

	t.Setenv("LANENET_NET_PORT", "5555")
	t.Setenv("LANENET_LOGLEVEL", "chatty")
	_, err = Load(New(), "")
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadRosterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "Fire_vizard": {"hp": 80, "attack_range": 100, "attack_damage": 7, "skills": {"skill1": 11}}
}`), 0o644))
	t.Setenv("LANENET_ROSTERFILE", path)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Len(t, cfg.Roster, 1)
	assert.Equal(t, 80.0, cfg.Roster["Fire_vizard"].HP)
	assert.Equal(t, 11.0, cfg.Roster["Fire_vizard"].Skills["skill1"])
}

func TestAddrs(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":5555", cfg.ListenAddr())
	assert.Equal(t, "127.0.0.1:5555", cfg.JoinAddr(""))
	assert.Equal(t, "10.0.0.2:5555", cfg.JoinAddr("10.0.0.2"))
	assert.Equal(t, "10.0.0.2:6001", cfg.JoinAddr("10.0.0.2:6001"))
	assert.Len(t, cfg.SessionOptions(), 7)
}
