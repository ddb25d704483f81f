package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "app.db", cfg.DB.Path)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.Controller.TickInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Controller.SampleInterval)
	assert.Equal(t, 16, cfg.Filter.Window)
	assert.Equal(t, []float64{1, 1}, cfg.Actuator.ElementScales)
	assert.Equal(t, SourceSim, cfg.Sensor.Source)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 25.0, cfg.Simulator.AmbientC)
	assert.Equal(t, 2, cfg.Calibration.RequiredStreak)
	assert.Equal(t, 5.0, cfg.Calibration.OvershootToleranceC)
	assert.Equal(t, "configs/profile.yml", cfg.Profile.Path)
}

func TestLoad_FileValues(t *testing.T) {
	dir := writeConfig(t, `
port: "9090"
log:
  level: debug
db:
  path: /var/lib/oven/oven.db
auth:
  signing_key: s3cret
  token_ttl: 30m
controller:
  tick_interval: 100ms
filter:
  window: 4
actuator:
  period: 2s
  element_scales: [1.0, 0.5]
sensor:
  source: SERIAL
serial:
  port: /dev/ttyUSB0
calibration:
  required_streak: 3
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/lib/oven/oven.db", cfg.DB.Path)
	assert.Equal(t, "s3cret", cfg.Auth.SigningKey)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Controller.TickInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Controller.SampleInterval, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Filter.Window)
	assert.Equal(t, 2*time.Second, cfg.Actuator.Period)
	assert.Equal(t, []float64{1.0, 0.5}, cfg.Actuator.ElementScales)
	assert.Equal(t, SourceSerial, cfg.Sensor.Source)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 3, cfg.Calibration.RequiredStreak)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "port: \"9090\"\n")
	t.Setenv("REFLOW_PORT", "7070")
	t.Setenv("REFLOW_DB_PATH", "/tmp/env.db")
	t.Setenv("REFLOW_CONTROLLER_TICK_INTERVAL", "25ms")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/tmp/env.db", cfg.DB.Path)
	assert.Equal(t, 25*time.Millisecond, cfg.Controller.TickInterval)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"serial without port", "sensor:\n  source: serial\n", "serial.port"},
		{"unknown source", "sensor:\n  source: thermistor\n", "unknown sensor.source"},
		{"zero tick", "controller:\n  tick_interval: 0s\n", "tick_interval"},
		{"period below tick", "actuator:\n  period: 10ms\n", "actuator.period"},
		{"malformed yaml", "port: [8080\n", "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
