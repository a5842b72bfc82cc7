// Package config loads the agent settings from a .env file, NDEF_*
// environment variables and command line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dotside-studios/ndefscan/nfc"
)

// Run modes
const (
	ModeServe = "serve" // long-running agent, one session per scan request
	ModeScan  = "scan"  // read one tag, print it, exit
)

// Radio backends
const (
	RadioLibNFC = "libnfc"
	RadioPCSC   = "pcsc"
	RadioRemote = "remote"
	RadioMock   = "mock"
)

// DefaultPort is the HTTP port of the agent.
const DefaultPort = 18080

const envPrefix = "NDEF_"

var (
	validModes  = []string{ModeServe, ModeScan}
	validRadios = []string{RadioLibNFC, RadioPCSC, RadioRemote, RadioMock}
)

type Config struct {
	Mode  string
	Radio string

	// Device is a libnfc connection string or a PC/SC reader name;
	// empty picks the first available one.
	Device string

	Port             int
	PollTimeout      time.Duration
	OperationTimeout time.Duration

	// Technologies restricts sessions to these tag families; empty allows all
	Technologies []string

	APISecret string

	// TLS serves HTTPS/WSS with a locally trusted certificate kept in TLSDir
	TLS    bool
	TLSDir string

	MDNS bool

	// RemoteDeviceTimeout drops remote devices that stop sending heartbeats
	RemoteDeviceTimeout time.Duration

	// Clipboard copies each scanned value to the system clipboard
	Clipboard bool

	// Continuous keeps a background session polling in serve mode so tags
	// are read without a scan request
	Continuous bool
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Mode:                ModeServe,
		Radio:               RadioLibNFC,
		Port:                DefaultPort,
		PollTimeout:         nfc.DefaultPollTimeout,
		OperationTimeout:    nfc.DefaultOperationTimeout,
		TLSDir:              defaultTLSDir(),
		MDNS:                true,
		Continuous:          true,
		RemoteDeviceTimeout: 30 * time.Second,
	}
}

func defaultTLSDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ndefscan"
	}
	return dir + string(os.PathSeparator) + "ndefscan"
}

// Load builds the configuration from args (without the program name).
// A missing .env file is not an error.
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv, os.Stderr)
}

func load(args []string, lookup func(string) (string, bool), output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("ndefscan", flag.ContinueOnError)
	fs.SetOutput(output)

	envFile := fs.String("env-file", ".env", "Path to a .env file")
	flagged := Default()
	var technologies string
	fs.StringVar(&flagged.Mode, "mode", flagged.Mode, "Run mode: serve or scan")
	fs.StringVar(&flagged.Radio, "radio", flagged.Radio, "Radio backend: libnfc, pcsc, remote or mock")
	fs.StringVar(&flagged.Device, "device", "", "NFC device connection string or PC/SC reader name (optional)")
	fs.IntVar(&flagged.Port, "port", flagged.Port, "Port to listen on")
	fs.DurationVar(&flagged.PollTimeout, "poll-timeout", flagged.PollTimeout, "How long a session waits for a tag (0 waits forever)")
	fs.DurationVar(&flagged.OperationTimeout, "op-timeout", flagged.OperationTimeout, "Timeout of each connect and read")
	fs.StringVar(&technologies, "technologies", "", "Comma separated tag technologies to accept (default: all)")
	fs.StringVar(&flagged.APISecret, "api-secret", "", "API secret for scan requests and WebSocket clients (optional)")
	fs.BoolVar(&flagged.TLS, "tls", flagged.TLS, "Serve HTTPS and WSS with a locally trusted certificate")
	fs.StringVar(&flagged.TLSDir, "tls-dir", flagged.TLSDir, "Directory for the local CA and server certificate")
	fs.BoolVar(&flagged.MDNS, "mdns", flagged.MDNS, "Advertise the agent over mDNS")
	fs.DurationVar(&flagged.RemoteDeviceTimeout, "device-timeout", flagged.RemoteDeviceTimeout, "Inactivity timeout of remote devices")
	fs.BoolVar(&flagged.Clipboard, "clipboard", flagged.Clipboard, "Copy each scanned value to the clipboard")
	fs.BoolVar(&flagged.Continuous, "continuous", flagged.Continuous, "Keep reading tags in serve mode without scan requests")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := Default()
	env := envLoader{lookup: lookup}
	env.loadString(&cfg.Mode, "MODE")
	env.loadString(&cfg.Radio, "RADIO")
	env.loadString(&cfg.Device, "DEVICE")
	env.loadInt(&cfg.Port, "PORT")
	env.loadDuration(&cfg.PollTimeout, "POLL_TIMEOUT")
	env.loadDuration(&cfg.OperationTimeout, "OP_TIMEOUT")
	env.loadStringSlice(&cfg.Technologies, "TECHNOLOGIES")
	env.loadString(&cfg.APISecret, "API_SECRET")
	env.loadBool(&cfg.TLS, "TLS")
	env.loadString(&cfg.TLSDir, "TLS_DIR")
	env.loadBool(&cfg.MDNS, "MDNS")
	env.loadDuration(&cfg.RemoteDeviceTimeout, "DEVICE_TIMEOUT")
	env.loadBool(&cfg.Clipboard, "CLIPBOARD")
	env.loadBool(&cfg.Continuous, "CONTINUOUS")
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(env.errs, "; "))
	}

	overrides := map[string]func(){
		"mode":           func() { cfg.Mode = flagged.Mode },
		"radio":          func() { cfg.Radio = flagged.Radio },
		"device":         func() { cfg.Device = flagged.Device },
		"port":           func() { cfg.Port = flagged.Port },
		"poll-timeout":   func() { cfg.PollTimeout = flagged.PollTimeout },
		"op-timeout":     func() { cfg.OperationTimeout = flagged.OperationTimeout },
		"technologies":   func() { cfg.Technologies = splitList(technologies) },
		"api-secret":     func() { cfg.APISecret = flagged.APISecret },
		"tls":            func() { cfg.TLS = flagged.TLS },
		"tls-dir":        func() { cfg.TLSDir = flagged.TLSDir },
		"mdns":           func() { cfg.MDNS = flagged.MDNS },
		"device-timeout": func() { cfg.RemoteDeviceTimeout = flagged.RemoteDeviceTimeout },
		"clipboard":      func() { cfg.Clipboard = flagged.Clipboard },
		"continuous":     func() { cfg.Continuous = flagged.Continuous },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	return &cfg, nil
}

// AllowedTechnologies parses Technologies. A nil result allows every technology.
func (c *Config) AllowedTechnologies() ([]nfc.Technology, error) {
	return nfc.ParseTechnologies(strings.Join(c.Technologies, ","))
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validModes, c.Mode) {
		errs = append(errs, fmt.Sprintf("mode must be one of: %s", strings.Join(validModes, ", ")))
	}
	if !slices.Contains(validRadios, c.Radio) {
		errs = append(errs, fmt.Sprintf("radio must be one of: %s", strings.Join(validRadios, ", ")))
	}
	if c.Radio == RadioRemote && c.Mode == ModeScan {
		errs = append(errs, "the remote radio needs serve mode so devices can connect")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.PollTimeout < 0 {
		errs = append(errs, "poll timeout must not be negative")
	}
	if c.OperationTimeout <= 0 {
		errs = append(errs, "operation timeout must be positive")
	}
	if c.RemoteDeviceTimeout <= 0 {
		errs = append(errs, "device timeout must be positive")
	}
	if _, err := c.AllowedTechnologies(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.TLS && c.TLSDir == "" {
		errs = append(errs, "tls needs a certificate directory")
	}
	// The CA bootstrap server listens on the next port.
	if c.TLS && c.Port == 65535 {
		errs = append(errs, "tls needs a port below 65535 for the certificate bootstrap server")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// envLoader reads NDEF_* variables, collecting conversion errors.
type envLoader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (l *envLoader) get(key string) (string, bool) {
	value, ok := l.lookup(envPrefix + key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (l *envLoader) loadString(target *string, key string) {
	if value, ok := l.get(key); ok {
		*target = value
	}
}

func (l *envLoader) loadInt(target *int, key string) {
	if value, ok := l.get(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Sprintf("invalid integer value for %s%s: %v", envPrefix, key, err))
			return
		}
		*target = parsed
	}
}

func (l *envLoader) loadBool(target *bool, key string) {
	if value, ok := l.get(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Sprintf("invalid boolean value for %s%s: %v", envPrefix, key, err))
			return
		}
		*target = parsed
	}
}

func (l *envLoader) loadDuration(target *time.Duration, key string) {
	if value, ok := l.get(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			l.errs = append(l.errs, fmt.Sprintf("invalid duration value for %s%s: %v", envPrefix, key, err))
			return
		}
		*target = parsed
	}
}

func (l *envLoader) loadStringSlice(target *[]string, key string) {
	if value, ok := l.get(key); ok {
		*target = splitList(value)
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
