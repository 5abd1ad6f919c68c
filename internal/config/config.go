// Package config loads the ingestion gateway's settings from a TOML
// file, an optional .env file, and the process environment, in that
// precedence order (environment overrides file, and the CLI flags
// layered on top in cmd/ingestor override both).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the full set of tunables for one ingestor process.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Shm       ShmConfig       `toml:"shm"`
	Indicator IndicatorConfig `toml:"indicator"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransportConfig configures the UDP ingestion socket (C1).
type TransportConfig struct {
	Address         string `toml:"address"`
	Interface       string `toml:"interface"`
	Mode            string `toml:"mode"` // "normal" or "testing"
	RecvBufferBytes int    `toml:"recv_buffer_bytes"`
}

// ShmConfig configures the shared-memory ring (C3/C4/C5).
type ShmConfig struct {
	Name             string `toml:"name"`
	SlotSize         int    `toml:"slot_size"`
	SlotCount        int    `toml:"slot_count"`
	TruncationPolicy string `toml:"truncation_policy"` // "truncate" or "drop"
}

// IndicatorConfig seeds the OFI/VPIN/Hawkes calculators (C7).
type IndicatorConfig struct {
	VPINBucketVolume float64 `toml:"vpin_bucket_volume"`
	VPINWindowN      int     `toml:"vpin_window_n"`
	HawkesMu         float64 `toml:"hawkes_mu"`
	HawkesAlpha      float64 `toml:"hawkes_alpha"`
	HawkesBeta       float64 `toml:"hawkes_beta"`
}

// LoggingConfig controls the zap logger cmd/ingestor builds.
type LoggingConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file, env var, or CLI
// flag overrides a field.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Address:         "127.0.0.1:30101",
			Mode:            "testing",
			RecvBufferBytes: 4 << 20,
		},
		Shm: ShmConfig{
			Name:             "ingest",
			SlotSize:         256,
			SlotCount:        1024,
			TruncationPolicy: "truncate",
		},
		Indicator: IndicatorConfig{
			VPINBucketVolume: 1000,
			VPINWindowN:      50,
			HawkesMu:         0.1,
			HawkesAlpha:      0.5,
			HawkesBeta:       1.0,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and parses a TOML file on top of Default. An empty path
// returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from a .env file into the
// process environment, where ApplyEnv will then pick them up. A
// missing file is not an error: .env is an optional developer
// convenience, not a deployment requirement.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// envPrefix namespaces every environment variable this package reads.
const envPrefix = "INGEST_"

// ApplyEnv overrides cfg's fields from INGEST_* environment variables,
// mutating in place. Unset variables leave the existing value (file or
// Default) untouched.
//
// The core's external interface names five variables directly:
// SHM_NAME, SHM_SLOT_SIZE, SHM_SLOT_COUNT, INGEST_BIND (for the bind
// address), and INGEST_MODE. INGEST_MODE is already the namespaced
// name for the mode; the other four are applied first as aliases, and
// their INGEST_ namespaced variant is applied after and wins if both
// are set, so a deployment can migrate to the namespaced set without a
// flag day.
func (c *Config) ApplyEnv() {
	applyString("INGEST_BIND", &c.Transport.Address)
	applyString("SHM_NAME", &c.Shm.Name)
	applyInt("SHM_SLOT_SIZE", &c.Shm.SlotSize)
	applyInt("SHM_SLOT_COUNT", &c.Shm.SlotCount)

	applyString(envPrefix+"ADDRESS", &c.Transport.Address)
	applyString(envPrefix+"INTERFACE", &c.Transport.Interface)
	applyString(envPrefix+"MODE", &c.Transport.Mode)
	applyInt(envPrefix+"RECV_BUFFER_BYTES", &c.Transport.RecvBufferBytes)

	applyString(envPrefix+"SHM_NAME", &c.Shm.Name)
	applyInt(envPrefix+"SLOT_SIZE", &c.Shm.SlotSize)
	applyInt(envPrefix+"SLOT_COUNT", &c.Shm.SlotCount)
	applyString(envPrefix+"TRUNCATION_POLICY", &c.Shm.TruncationPolicy)

	applyFloat(envPrefix+"VPIN_BUCKET_VOLUME", &c.Indicator.VPINBucketVolume)
	applyInt(envPrefix+"VPIN_WINDOW_N", &c.Indicator.VPINWindowN)
	applyFloat(envPrefix+"HAWKES_MU", &c.Indicator.HawkesMu)
	applyFloat(envPrefix+"HAWKES_ALPHA", &c.Indicator.HawkesAlpha)
	applyFloat(envPrefix+"HAWKES_BETA", &c.Indicator.HawkesBeta)

	applyString(envPrefix+"LOG_LEVEL", &c.Logging.Level)
}

func applyString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func applyInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func applyFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}
