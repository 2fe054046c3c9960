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
	path := filepath.Join(t.TempDir(), "camera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
id: 2
name: Lectern
control:
  method: tcp
  address: 10.0.0.5:5678
homeCmdSupport: true
panSpeedSlow: 5
panSpeedFast: 18
tiltSpeedSlow: 4
tiltSpeedFast: 16
fastSpeedHoldTimeMs: 500
presets:
  - id: 1
    description: Wide
    isDefined: true
communicationMonitorProperties:
  pollInterval: 5000
  timeToWarning: 12000
  timeToError: 24000
  pollString: "Power, Mute,ZoomPosition"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.ID)
	assert.Equal(t, "Lectern", cfg.Name)
	assert.True(t, cfg.Enabled, "enabled defaults to true")
	assert.Equal(t, "tcp", cfg.Control.Method)
	assert.Equal(t, "10.0.0.5:5678", cfg.Control.Address)
	assert.Equal(t, 9600, cfg.Control.BaudRate)
	assert.True(t, cfg.HomeCmdSupport)
	assert.Equal(t, 5, cfg.PanSpeedSlow)
	assert.Equal(t, 18, cfg.PanSpeedFast)
	assert.Equal(t, 500*time.Millisecond, cfg.FastSpeedHoldTime())
	require.Len(t, cfg.Presets, 1)
	assert.Equal(t, Preset{ID: 1, Description: "Wide", IsDefined: true}, cfg.Presets[0])
	assert.Equal(t, ":8080", cfg.Server.Listen)

	poll, warning, failure, names := cfg.Monitor()
	assert.Equal(t, 5*time.Second, poll)
	assert.Equal(t, 12*time.Second, warning)
	assert.Equal(t, 24*time.Second, failure)
	assert.Equal(t, []string{"Power", "Mute", "ZoomPosition"}, names)
}

func TestLoadRejectsCameraID(t *testing.T) {
	path := writeConfig(t, "id: 9\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCameraID)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "id", cfgErr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "id: 1\n")
	t.Setenv("VISCA_ID", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ID)
}

func TestMonitorDefaults(t *testing.T) {
	cfg := &Config{ID: 1}
	poll, warning, failure, names := cfg.Monitor()
	assert.Equal(t, 10*time.Second, poll)
	assert.Equal(t, 20*time.Second, warning)
	assert.Equal(t, 30*time.Second, failure)
	assert.Empty(t, names)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"valid", Config{ID: 1}, nil},
		{"id 7", Config{ID: 7}, nil},
		{"id 0", Config{ID: 0}, ErrInvalidCameraID},
		{"id 8", Config{ID: 8}, ErrInvalidCameraID},
		{"pan speed too high", Config{ID: 1, PanSpeedFast: 0x19}, ErrInvalidSpeed},
		{"tilt speed too high", Config{ID: 1, TiltSpeedSlow: 0x15}, ErrInvalidSpeed},
		{"negative speed", Config{ID: 1, PanSpeedSlow: -1}, ErrInvalidSpeed},
		{
			"warning after error",
			Config{ID: 1, CommunicationMonitorProperties: &MonitorConfig{PollInterval: 1000, TimeToWarning: 5000, TimeToError: 5000}},
			ErrInvalidMonitor,
		},
		{
			"zero poll",
			Config{ID: 1, CommunicationMonitorProperties: &MonitorConfig{TimeToWarning: 1000, TimeToError: 2000}},
			ErrInvalidMonitor,
		},
		{"unknown control", Config{ID: 1, Control: ControlConfig{Method: "ir"}}, ErrInvalidControl},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
