// Package config loads gateway configuration from an optional YAML file,
// overlaid with command-line flags. Flags always win over the file; the
// file always wins over the hardcoded defaults below.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting a meshgw binary needs that isn't a power-
// manager tunable (those stay compile-time constants in pkg/power).
type Config struct {
	// ScanAddress, if set, bypasses name/UUID scan filtering and connects
	// to this exact link-layer address.
	ScanAddress string `yaml:"scan_address"`

	// NamePrefixes overrides transport.DefaultNamePrefixes when non-empty.
	NamePrefixes []string `yaml:"name_prefixes"`

	// HistoryBackend selects the persistence layer: "none" or "sqlite".
	HistoryBackend string `yaml:"history_backend"`

	// HistoryPath is the SQLite file path when HistoryBackend is "sqlite".
	HistoryPath string `yaml:"history_path"`

	// LogLevel controls operational log verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLogPath, if set, captures every frame/message/state-change
	// event as CBOR via pkg/log.FileLogger.
	ProtocolLogPath string `yaml:"protocol_log_path"`

	// WebListenAddr is the address cmd/meshgw-web binds its HTTP server to.
	WebListenAddr string `yaml:"web_listen_addr"`
}

// Default returns the built-in configuration before any file or flag
// overlay is applied.
func Default() Config {
	return Config{
		HistoryBackend: "none",
		HistoryPath:    "meshgw-history.db",
		LogLevel:       "info",
		WebListenAddr:  ":8642",
	}
}

// LoadFile reads and merges a YAML config file on top of base. A missing
// path is not an error — it just returns base unchanged, matching the
// "-config is optional" behavior of the reference controller.
func LoadFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return base, nil
}

// RegisterFlags binds cfg's fields to flag.CommandLine so flag.Parse
// overlays them on top of whatever LoadFile produced. Call RegisterFlags
// before flag.Parse and after LoadFile so the flag defaults shown in
// -help reflect the file's values.
func RegisterFlags(cfg *Config) {
	flag.StringVar(&cfg.ScanAddress, "scan-address", cfg.ScanAddress, "connect to this exact BLE address, bypassing name/UUID filters")
	flag.StringVar(&cfg.HistoryBackend, "history-backend", cfg.HistoryBackend, "reading history backend: none, sqlite")
	flag.StringVar(&cfg.HistoryPath, "history-path", cfg.HistoryPath, "sqlite database path when history-backend=sqlite")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "operational log level: debug, info, warn, error")
	flag.StringVar(&cfg.ProtocolLogPath, "protocol-log", cfg.ProtocolLogPath, "capture protocol frames/messages as CBOR to this file")
	flag.StringVar(&cfg.WebListenAddr, "web-listen", cfg.WebListenAddr, "listen address for the web dashboard")
}
