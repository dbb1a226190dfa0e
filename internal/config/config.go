// Package config resolves process configuration with precedence
// flags > FSGRID_* environment > .env file > defaults. Flags are applied
// by the cli package; this package covers the rest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvAddr          = "FSGRID_ADDR"
	EnvDataDir       = "FSGRID_DATA_DIR"
	EnvCount         = "FSGRID_COUNT"
	EnvPartitions    = "FSGRID_PARTITIONS"
	EnvBuffer        = "FSGRID_BUFFER"
	EnvPageSize      = "FSGRID_PAGE_SIZE"
	EnvLogFormat     = "FSGRID_LOG_FORMAT"
	EnvPyroscopeAddr = "FSGRID_PYROSCOPE_ADDR"
)

// DefaultEnvFile is read when no file is named.
const DefaultEnvFile = ".env"

// Config holds the settings shared by the serve, query and bench commands.
type Config struct {
	// Addr is the server listen address and the client target.
	Addr string

	// DataDir holds currency_codes.txt and sectors.txt.
	DataDir string

	// Count is the number of entities to load.
	Count int

	// Partitions and Buffer tune the entity store.
	Partitions int
	Buffer     int

	// PageSize is the default page size for workloads that set none.
	PageSize int

	// LogFormat is "text" or "json".
	LogFormat string

	// PyroscopeAddr enables continuous profiling when set.
	PyroscopeAddr string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:       ":8080",
		DataDir:    "data",
		Count:      2000,
		Partitions: 8,
		Buffer:     512,
		PageSize:   50,
		LogFormat:  "text",
	}
}

// Error reports an unusable setting.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// LoadEnvFile sets variables from a .env file without overriding ones
// already present. A missing file is not an error; it reports whether a
// file was read.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return true, nil
}

// Load reads envFile and then the environment over the defaults.
func Load(envFile string) (Config, error) {
	if _, err := LoadEnvFile(envFile); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv overlays the variables lookup returns on the defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Key: key, Message: fmt.Sprintf("not an integer: %q", v)}
		}
		*dst = n
		return nil
	}

	str(EnvAddr, &cfg.Addr)
	str(EnvDataDir, &cfg.DataDir)
	str(EnvLogFormat, &cfg.LogFormat)
	str(EnvPyroscopeAddr, &cfg.PyroscopeAddr)
	for key, dst := range map[string]*int{
		EnvCount:      &cfg.Count,
		EnvPartitions: &cfg.Partitions,
		EnvBuffer:     &cfg.Buffer,
		EnvPageSize:   &cfg.PageSize,
	} {
		if err := num(key, dst); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.Count < 0:
		return &Error{Key: EnvCount, Message: "must not be negative"}
	case c.Partitions <= 0:
		return &Error{Key: EnvPartitions, Message: "must be positive"}
	case c.Buffer <= 0:
		return &Error{Key: EnvBuffer, Message: "must be positive"}
	case c.PageSize <= 0:
		return &Error{Key: EnvPageSize, Message: "must be positive"}
	case c.LogFormat != "text" && c.LogFormat != "json":
		return &Error{Key: EnvLogFormat, Message: fmt.Sprintf("must be text or json, got %q", c.LogFormat)}
	}
	return nil
}

// ClientURL turns a listen address such as ":8080" into a base URL.
func (c Config) ClientURL() string {
	addr := c.Addr
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
