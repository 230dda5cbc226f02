package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Collector  CollectorConfig  `koanf:"collector"`
	RouterData RouterDataConfig `koanf:"router_data"`
	Logging    LoggingConfig    `koanf:"logging"`
	Admin      AdminConfig      `koanf:"admin"`
}

type CollectorConfig struct {
	Host                     string `koanf:"host"`
	Port                     int    `koanf:"port"`
	DelayAfterInitAndPeerUps int    `koanf:"delay_after_init_and_peer_ups"`
	InitialBackoffSeconds    int    `koanf:"initial_backoff_seconds"`
	MaxBackoffSeconds        int    `koanf:"max_backoff_seconds"`
}

type RouterDataConfig struct {
	MasterDirectoryPath                string `koanf:"master_directory_path"`
	ProcessedDirectoryPath             string `koanf:"processed_directory_path"`
	IgnoreTimestampIntervalAbnormality bool   `koanf:"ignore_timestamp_interval_abnormality"`
	TimestampIntervalLimit             int    `koanf:"timestamp_interval_limit"`
	MaxQueueSize                       int    `koanf:"max_queue_size"`
	EmitPeerDown                       bool   `koanf:"emit_peer_down"`
	PollIntervalSeconds                int    `koanf:"poll_interval_seconds"`
}

type LoggingConfig struct {
	Level      string            `koanf:"level"`
	Directory  string            `koanf:"directory"`
	MaxSizeMB  int               `koanf:"max_size_mb"`
	MaxBackups int               `koanf:"max_backups"`
	Subsystems map[string]string `koanf:"subsystems"`
}

type AdminConfig struct {
	Listen string `koanf:"listen"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: MRT2BMP_COLLECTOR__HOST → collector.host
	if err := k.Load(env.Provider("MRT2BMP_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MRT2BMP_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Collector: CollectorConfig{
			Port:                     5000,
			DelayAfterInitAndPeerUps: 5,
			InitialBackoffSeconds:    1,
			MaxBackoffSeconds:        60,
		},
		RouterData: RouterDataConfig{
			TimestampIntervalLimit: 20,
			MaxQueueSize:           10000,
			EmitPeerDown:           true,
			PollIntervalSeconds:    120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  ".",
			MaxSizeMB:  20,
			MaxBackups: 10,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Collector.Host == "" {
		return fmt.Errorf("config: collector.host is required")
	}
	if c.Collector.Port <= 0 || c.Collector.Port > 65535 {
		return fmt.Errorf("config: collector.port %d out of range", c.Collector.Port)
	}
	if c.Collector.DelayAfterInitAndPeerUps < 0 {
		return fmt.Errorf("config: collector.delay_after_init_and_peer_ups must be >= 0 (got %d)", c.Collector.DelayAfterInitAndPeerUps)
	}
	if c.Collector.InitialBackoffSeconds <= 0 {
		return fmt.Errorf("config: collector.initial_backoff_seconds must be > 0 (got %d)", c.Collector.InitialBackoffSeconds)
	}
	if c.Collector.MaxBackoffSeconds < c.Collector.InitialBackoffSeconds {
		return fmt.Errorf("config: collector.max_backoff_seconds (%d) below initial_backoff_seconds (%d)",
			c.Collector.MaxBackoffSeconds, c.Collector.InitialBackoffSeconds)
	}
	if c.RouterData.MasterDirectoryPath == "" {
		return fmt.Errorf("config: router_data.master_directory_path is required")
	}
	if c.RouterData.ProcessedDirectoryPath == "" {
		return fmt.Errorf("config: router_data.processed_directory_path is required")
	}
	if c.RouterData.TimestampIntervalLimit <= 0 {
		return fmt.Errorf("config: router_data.timestamp_interval_limit must be > 0 (got %d)", c.RouterData.TimestampIntervalLimit)
	}
	if c.RouterData.MaxQueueSize <= 0 {
		return fmt.Errorf("config: router_data.max_queue_size must be > 0 (got %d)", c.RouterData.MaxQueueSize)
	}
	if c.RouterData.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: router_data.poll_interval_seconds must be > 0 (got %d)", c.RouterData.PollIntervalSeconds)
	}
	if c.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("config: logging.max_size_mb must be > 0 (got %d)", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("config: logging.max_backups must be >= 0 (got %d)", c.Logging.MaxBackups)
	}
	return nil
}
