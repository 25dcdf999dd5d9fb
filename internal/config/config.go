package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	Secret string `mapstructure:"secret"`

	DirectoryURL  string `mapstructure:"directory_url"`
	CredentialURL string `mapstructure:"credential_url"`
	SignalURL     string `mapstructure:"signal_url"`

	ICEServers []string `mapstructure:"ice_servers"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// HealthDebounce is how long Disconnected must persist before the
	// UI sees Degraded.
	HealthDebounce time.Duration `mapstructure:"health_debounce"`
	// FirstFrameChecks are the delays after binding at which frame
	// arrival is checked; the last one is the stall deadline.
	FirstFrameChecks []time.Duration `mapstructure:"first_frame_checks"`

	DirectoryRetryMax time.Duration `mapstructure:"directory_retry_max"`

	// ViewerTTL is how long an untouched viewer may stay mounted before
	// the manager evicts it.
	ViewerTTL time.Duration `mapstructure:"viewer_ttl"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "livehall-dev-secret")
	v.SetDefault("directory_url", "http://localhost:9000")
	v.SetDefault("credential_url", "http://localhost:9001")
	v.SetDefault("signal_url", "ws://localhost:9090/signal")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("health_debounce", "3s")
	v.SetDefault("first_frame_checks", []time.Duration{
		500 * time.Millisecond,
		2 * time.Second,
		5 * time.Second,
	})
	v.SetDefault("directory_retry_max", "10s")
	v.SetDefault("viewer_ttl", "30m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
