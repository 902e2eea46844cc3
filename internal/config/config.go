// Package config loads settings from defaults, an optional YAML file and
// NETMON_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"netmonitor/internal/analysis"
	"netmonitor/internal/capture"
	"netmonitor/internal/discovery"
	"netmonitor/internal/logger"
	"netmonitor/internal/monitor"
	"netmonitor/internal/portscan"
	"netmonitor/internal/storage"
	"netmonitor/internal/validate"
)

const (
	// EnvPrefix marks variables read as overrides. "__" separates levels:
	// NETMON_DETECTION__SYN_THRESHOLD=200 sets detection.syn_threshold.
	EnvPrefix = "NETMON_"
	// ConfigPathEnvVar names the YAML file when -config is not given.
	ConfigPathEnvVar = "CONFIG_PATH"
	// DefaultConfigFile is read when present in the working directory.
	DefaultConfigFile = "netmonitor.yaml"
)

type Config struct {
	Logging   logger.Config           `koanf:"logging"`
	Capture   CaptureConfig           `koanf:"capture"`
	Detection analysis.DetectorConfig `koanf:"detection"`
	Discovery discovery.Config        `koanf:"discovery"`
	PortScan  portscan.Config         `koanf:"portscan"`
	Monitor   monitor.Config          `koanf:"monitor"`
	Storage   storage.Config          `koanf:"storage"`
	Events    EventsConfig            `koanf:"events"`
	HTTP      HTTPConfig              `koanf:"http"`
	Report    ReportConfig            `koanf:"report"`
}

type CaptureConfig struct {
	Backend   string `koanf:"backend" validate:"oneof=pcap tshark"`
	Interface string `koanf:"interface"`
	Filter    string `koanf:"filter"`
	Promisc   bool   `koanf:"promisc"`
	SnapLen   int32  `koanf:"snap_len" validate:"gte=0"`
	// TsharkPath overrides the tshark binary looked up on PATH.
	TsharkPath   string        `koanf:"tshark_path"`
	Window       time.Duration `koanf:"window" validate:"gte=0"`
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"gt=0"`
	PortSetLimit int           `koanf:"port_set_limit" validate:"min=1,max=1024"`
	// RequirePrivileges turns the missing-root warning into a startup failure.
	RequirePrivileges bool `koanf:"require_privileges"`
}

type EventsConfig struct {
	Buffer int         `koanf:"buffer" validate:"min=1"`
	Redis  RedisConfig `koanf:"redis"`
	NATS   NATSConfig  `koanf:"nats"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr" validate:"required_if=Enabled true"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Channel  string `koanf:"channel"`
}

type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"required_if=Enabled true"`
	Subject string `koanf:"subject"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

type ReportConfig struct {
	Dir string `koanf:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: logger.Config{Level: "info", Format: "json", Output: "stderr"},
		Capture: CaptureConfig{
			Backend:      "pcap",
			Promisc:      true,
			SnapLen:      128,
			RetryBackoff: time.Second,
			PortSetLimit: 1024,
		},
		Detection: analysis.DefaultDetectorConfig(),
		Discovery: discovery.DefaultConfig(),
		PortScan:  portscan.DefaultConfig(),
		Monitor:   monitor.DefaultConfig(),
		Storage:   storage.DefaultConfig(),
		Events: EventsConfig{
			Buffer: 256,
			Redis:  RedisConfig{Addr: "localhost:6379", Channel: "netmonitor"},
			NATS:   NATSConfig{URL: "nats://localhost:4222", Subject: "netmonitor"},
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Report: ReportConfig{Dir: "."},
	}
}

// Load layers defaults, the YAML file at path (or the one found through
// CONFIG_PATH or the default file name) and the environment, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// envTransformFunc maps NETMON_SECTION__KEY to section.key.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// Sampler returns the sampler settings of the capture section.
func (c CaptureConfig) Sampler() analysis.SamplerConfig {
	return analysis.SamplerConfig{
		RetryBackoff: c.RetryBackoff,
		Window:       c.Window,
		PortSetLimit: c.PortSetLimit,
	}
}

// Source builds the configured capture backend.
func (c CaptureConfig) Source() capture.Source {
	if c.Backend == "tshark" {
		return &capture.TsharkSource{Interface: c.Interface, Filter: c.Filter, Binary: c.TsharkPath}
	}
	return capture.NewPcapSource(capture.PcapConfig{
		Interface: c.Interface,
		SnapLen:   c.SnapLen,
		Promisc:   c.Promisc,
		Filter:    c.Filter,
	})
}
