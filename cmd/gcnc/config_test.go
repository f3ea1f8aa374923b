package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "grbl", cfg.Controller)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Port)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Zero(t, cfg.Timeout)
}

func TestParseConfig_FileAndFlags(t *testing.T) {
	name := filepath.Join(t.TempDir(), "gcnc.yaml")
	err := os.WriteFile(name, []byte(`
controller: sim
port: /dev/ttyACM0
timeout: 5s
addr: ":8080"
sim:
  delay: 10ms
`), 0644)
	require.NoError(t, err)

	cfg, err := parseConfig([]string{"-config", name, "-addr", ":9000", "-run", "part.nc"})
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Controller)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Sim.Delay)
	assert.Equal(t, ":9000", cfg.Addr, "flag overrides file")
	assert.Equal(t, "./data", cfg.Dir, "default kept")
	assert.Equal(t, "part.nc", cfg.Run)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := parseConfig([]string{"-controller", "marlin"})
	assert.Error(t, err)

	_, err = parseConfig([]string{"-granularity", "0"})
	assert.Error(t, err)

	_, err = parseConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	name := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(name, []byte("timeout: [1"), 0644))
	_, err = parseConfig([]string{"-config", name})
	assert.Error(t, err)
}
