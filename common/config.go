// common/config.go
package common

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
)

const (
	TransportTCP  = "tcp"
	TransportQUIC = "quic"
)

type Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"`

	DialTimeout Duration `yaml:"dialTimeout"`
	// SoftTimeout is how long a read waits for the next frame before the
	// timeout listeners are told about it. Zero disables soft timeouts.
	SoftTimeout Duration `yaml:"softTimeout"`

	ReconnectAttempts int      `yaml:"reconnectAttempts"`
	ReconnectDelay    Duration `yaml:"reconnectDelay"`

	// Journal is the SQLite file events and actions are recorded to.
	// Empty disables the journal.
	Journal string `yaml:"journal"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// DefaultConfig points at a simulator on localhost:8081 over TCP.
func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              8081,
		Transport:         TransportTCP,
		DialTimeout:       Duration(5 * time.Second),
		SoftTimeout:       Duration(30 * time.Second),
		ReconnectAttempts: 5,
		ReconnectDelay:    Duration(time.Second),
		LogLevel:          "info",
	}
}

// LoadConfig decodes the YAML file at path over the defaults. Keys missing
// from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Transport != TransportTCP && c.Transport != TransportQUIC {
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.ReconnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("reconnectAttempts %d must be at least 1", c.ReconnectAttempts))
	}
	if c.SoftTimeout < 0 || c.ReconnectDelay < 0 || c.DialTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns "host:port" for the dialer.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseLevel maps debug/info/warn/error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Duration lets YAML files spell durations as "1s" or "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
