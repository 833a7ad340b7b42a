package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type SignalConfig struct {
	URL string `mapstructure:"url"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type VoiceConfig struct {
	Threshold     float64       `mapstructure:"threshold"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type CaptureConfig struct {
	DeviceID   string        `mapstructure:"device_id"`
	SampleRate int           `mapstructure:"sample_rate"`
	Latency    time.Duration `mapstructure:"latency"`
}

type TelemetryConfig struct {
	URL        string        `mapstructure:"url"`
	Interval   time.Duration `mapstructure:"interval"`
	Phases     []string      `mapstructure:"phases"`
	MinMembers int           `mapstructure:"min_members"`
}

type Config struct {
	Mode       string          `mapstructure:"mode"`
	PeerName   string          `mapstructure:"peer_name"`
	DiagPort   int             `mapstructure:"diag_port"`
	Signal     SignalConfig    `mapstructure:"signal"`
	ICEServers []ICEServer     `mapstructure:"ice_servers"`
	Reconnect  ReconnectConfig `mapstructure:"reconnect"`
	Voice      VoiceConfig     `mapstructure:"voice"`
	Capture    CaptureConfig   `mapstructure:"capture"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
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
	v.SetDefault("peer_name", "anonymous")
	v.SetDefault("diag_port", 8090)
	v.SetDefault("signal.url", "ws://localhost:8080")
	v.SetDefault("reconnect.initial_delay", "1s")
	v.SetDefault("reconnect.max_delay", "30s")
	v.SetDefault("reconnect.max_attempts", 3)
	v.SetDefault("voice.threshold", 0.04)
	v.SetDefault("voice.stats_interval", "2s")
	v.SetDefault("capture.sample_rate", 48000)
	v.SetDefault("capture.latency", "20ms")
	v.SetDefault("telemetry.interval", "2s")
	v.SetDefault("telemetry.min_members", 2)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Diag: %d | Signal: %s\n", cfg.Mode, cfg.DiagPort, cfg.Signal.URL)
	return &cfg, nil
}
