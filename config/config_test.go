package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/ndefscan/nfc"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// noEnvFile points the loader at a .env file that does not exist.
func noEnvFile(t *testing.T) []string {
	return []string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(noEnvFile(t), envMap(nil), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ModeServe, cfg.Mode)
	assert.Equal(t, RadioLibNFC, cfg.Radio)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, nfc.DefaultPollTimeout, cfg.PollTimeout)
	assert.Equal(t, nfc.DefaultOperationTimeout, cfg.OperationTimeout)
	assert.True(t, cfg.MDNS)
	assert.False(t, cfg.TLS)
	assert.True(t, cfg.Continuous)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := load(noEnvFile(t), envMap(map[string]string{
		"NDEF_MODE":         "scan",
		"NDEF_RADIO":        "pcsc",
		"NDEF_DEVICE":       "ACS ACR122U PICC Interface",
		"NDEF_PORT":         "19000",
		"NDEF_POLL_TIMEOUT": "10s",
		"NDEF_OP_TIMEOUT":   "750ms",
		"NDEF_TECHNOLOGIES": "type2, felica",
		"NDEF_API_SECRET":   "s3cret",
		"NDEF_MDNS":         "false",
		"NDEF_CLIPBOARD":    "true",
		"NDEF_CONTINUOUS":   "0",
		"NDEF_PORTLESS":     "ignored",
	}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ModeScan, cfg.Mode)
	assert.Equal(t, RadioPCSC, cfg.Radio)
	assert.Equal(t, "ACS ACR122U PICC Interface", cfg.Device)
	assert.Equal(t, 19000, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.OperationTimeout)
	assert.Equal(t, []string{"type2", "felica"}, cfg.Technologies)
	assert.Equal(t, "s3cret", cfg.APISecret)
	assert.False(t, cfg.MDNS)
	assert.True(t, cfg.Clipboard)
	assert.False(t, cfg.Continuous)

	techs, err := cfg.AllowedTechnologies()
	require.NoError(t, err)
	assert.Equal(t, []nfc.Technology{nfc.TechMiFare, nfc.TechFeliCa}, techs)
}

func TestLoadFlagsOverrideEnvironment(t *testing.T) {
	args := append(noEnvFile(t), "-port", "20000", "-radio", "mock", "-technologies", "iso7816", "-mdns=true")
	cfg, err := load(args, envMap(map[string]string{
		"NDEF_PORT":  "19000",
		"NDEF_RADIO": "pcsc",
		"NDEF_MDNS":  "false",
		"NDEF_MODE":  "scan",
	}), io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 20000, cfg.Port)
	assert.Equal(t, RadioMock, cfg.Radio)
	assert.Equal(t, []string{"iso7816"}, cfg.Technologies)
	assert.True(t, cfg.MDNS)
	assert.Equal(t, ModeScan, cfg.Mode, "unset flags keep the environment value")
}

func TestLoadEnvironmentErrors(t *testing.T) {
	_, err := load(noEnvFile(t), envMap(map[string]string{
		"NDEF_PORT":         "http",
		"NDEF_POLL_TIMEOUT": "soon",
		"NDEF_TLS":          "maybe",
	}), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NDEF_PORT")
	assert.Contains(t, err.Error(), "NDEF_POLL_TIMEOUT")
	assert.Contains(t, err.Error(), "NDEF_TLS")
}

func TestLoadBadFlag(t *testing.T) {
	_, err := load([]string{"-port", "eighty"}, envMap(nil), io.Discard)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.env")
	require.NoError(t, os.WriteFile(path, []byte("NDEF_TEST_RADIO_FILE=1\nNDEF_DEVICE_TIMEOUT=45s\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("NDEF_TEST_RADIO_FILE")
		os.Unsetenv("NDEF_DEVICE_TIMEOUT")
	})

	cfg, err := load([]string{"-env-file", path}, os.LookupEnv, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.RemoteDeviceTimeout)
	assert.Equal(t, "1", os.Getenv("NDEF_TEST_RADIO_FILE"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr []string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name:    "unknown radio",
			modify:  func(c *Config) { c.Radio = "bluetooth" },
			wantErr: []string{"radio must be one of"},
		},
		{
			name:    "unknown mode",
			modify:  func(c *Config) { c.Mode = "daemon" },
			wantErr: []string{"mode must be one of"},
		},
		{
			name:    "remote radio in scan mode",
			modify:  func(c *Config) { c.Radio = RadioRemote; c.Mode = ModeScan },
			wantErr: []string{"remote radio needs serve mode"},
		},
		{
			name:    "bad technology",
			modify:  func(c *Config) { c.Technologies = []string{"type2", "bluetooth"} },
			wantErr: []string{`unknown tag technology "bluetooth"`},
		},
		{
			name:    "tls on the last port",
			modify:  func(c *Config) { c.TLS = true; c.Port = 65535 },
			wantErr: []string{"port below 65535"},
		},
		{
			name:   "last port without tls",
			modify: func(c *Config) { c.TLS = false; c.Port = 65535 },
		},
		{
			name: "aggregates every problem",
			modify: func(c *Config) {
				c.Port = 0
				c.OperationTimeout = 0
				c.PollTimeout = -time.Second
				c.TLS = true
				c.TLSDir = ""
			},
			wantErr: []string{"port must be between", "operation timeout", "poll timeout", "tls needs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
