package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// VehicleSpec describes one scripted vehicle of a traffic scenario.
type VehicleSpec struct {
	Type     VehicleType `mapstructure:"type"`
	SpeedKmh uint32      `mapstructure:"speed"`
	Axles    uint32      `mapstructure:"axles"`
}

type TrafficConfig struct {
	Vehicles   int           `mapstructure:"vehicles"`
	Continuous bool          `mapstructure:"continuous"`
	Interval   time.Duration `mapstructure:"interval"`
	AxleGap    time.Duration `mapstructure:"axle_gap"`
	Seed       int64         `mapstructure:"seed"`
	Scenario   []VehicleSpec `mapstructure:"scenario"`
	Progress   bool          `mapstructure:"progress"`
}

type CameraConfig struct {
	Mode                 string        `mapstructure:"mode"`
	Latency              time.Duration `mapstructure:"latency"`
	FailureRatePercent   int           `mapstructure:"failure_rate_percent"`
	SilenceRatePercent   int           `mapstructure:"silence_rate_percent"`
	MalformedRatePercent int           `mapstructure:"malformed_rate_percent"`
	WhitespaceQuirk      bool          `mapstructure:"whitespace_quirk"`
	Seed                 int64         `mapstructure:"seed"`
}

type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	TriggerTopic string `mapstructure:"trigger_topic"`
	ResultTopic  string `mapstructure:"result_topic"`
	KeepAlive    uint16 `mapstructure:"keep_alive"`
}

type KafkaConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BrokerList       string `mapstructure:"broker_list"`
	Topic            string `mapstructure:"topic"`
	SessionTimeoutMs int    `mapstructure:"session_timeout_ms"`
}

type OutputConfig struct {
	Console bool   `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

type Config struct {
	StationID               string        `mapstructure:"station_id"`
	SensorDistanceMm        uint32        `mapstructure:"sensor_distance_mm"`
	SpeedLimitLightKmh      uint32        `mapstructure:"speed_limit_light_kmh"`
	SpeedLimitHeavyKmh      uint32        `mapstructure:"speed_limit_heavy_kmh"`
	WarningThresholdPercent uint32        `mapstructure:"warning_threshold_percent"`
	AxleTimeout             time.Duration `mapstructure:"axle_timeout"`
	SupervisorPeriod        time.Duration `mapstructure:"supervisor_period"`
	CaptureTimeout          time.Duration `mapstructure:"capture_timeout"`
	PublishTimeout          time.Duration `mapstructure:"publish_timeout"`
	QueueCapacity           int           `mapstructure:"queue_capacity"`
	SubscriberBuffer        int           `mapstructure:"subscriber_buffer"`
	LogLevel                string        `mapstructure:"log_level"`

	Traffic TrafficConfig `mapstructure:"traffic"`
	Camera  CameraConfig  `mapstructure:"camera"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Output  OutputConfig  `mapstructure:"output"`
}

// SetDefaults registers the station defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("station_id", "radar-01")
	v.SetDefault("sensor_distance_mm", 1000)
	v.SetDefault("speed_limit_light_kmh", 60)
	v.SetDefault("speed_limit_heavy_kmh", 40)
	v.SetDefault("warning_threshold_percent", 90)
	v.SetDefault("axle_timeout", "2s")
	v.SetDefault("supervisor_period", "500ms")
	v.SetDefault("capture_timeout", "2s")
	v.SetDefault("publish_timeout", "100ms")
	v.SetDefault("queue_capacity", 10)
	v.SetDefault("subscriber_buffer", 4)
	v.SetDefault("log_level", "info")

	v.SetDefault("traffic.vehicles", 4)
	v.SetDefault("traffic.continuous", false)
	v.SetDefault("traffic.interval", "3s")
	v.SetDefault("traffic.axle_gap", "100ms")
	v.SetDefault("traffic.seed", 42)
	v.SetDefault("traffic.progress", false)
	v.SetDefault("traffic.scenario", []map[string]interface{}{
		{"type": "light", "speed": 50, "axles": 2},
		{"type": "light", "speed": 56, "axles": 2},
		{"type": "light", "speed": 70, "axles": 2},
		{"type": "heavy", "speed": 50, "axles": 3},
	})

	v.SetDefault("camera.mode", CameraModeSimulated)
	v.SetDefault("camera.latency", "300ms")
	v.SetDefault("camera.failure_rate_percent", 10)
	v.SetDefault("camera.silence_rate_percent", 5)
	v.SetDefault("camera.malformed_rate_percent", 10)
	v.SetDefault("camera.whitespace_quirk", true)
	v.SetDefault("camera.seed", 7)

	v.SetDefault("mqtt.broker", "localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.trigger_topic", "radar/camera/trigger")
	v.SetDefault("mqtt.result_topic", "radar/camera/result")
	v.SetDefault("mqtt.keep_alive", 30)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.broker_list", "localhost:9092")
	v.SetDefault("kafka.topic", "radar.display")
	v.SetDefault("kafka.session_timeout_ms", 0)

	v.SetDefault("output.console", true)
	v.SetDefault("output.file", "")
}

// LoadConfig initializes and reads the configuration using Viper
func LoadConfig(cfgFile string) (*Config, error) {
	return LoadConfigFrom(viper.GetViper(), cfgFile)
}

// LoadConfigFrom reads the configuration through v. A missing default
// config file is not an error; a missing explicit one is.
func LoadConfigFrom(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Default config location
		v.AddConfigPath(".")
		v.AddConfigPath("examples")
		v.SetConfigName("radarsim")
	}

	v.SetEnvPrefix("radarsim")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	})
	if err := v.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the station cannot run with.
func (cfg *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.SensorDistanceMm > 0, "sensor_distance_mm must be positive")
	check(cfg.SpeedLimitLightKmh > 0, "speed_limit_light_kmh must be positive")
	check(cfg.SpeedLimitHeavyKmh > 0, "speed_limit_heavy_kmh must be positive")
	check(cfg.WarningThresholdPercent <= 100, "warning_threshold_percent must be at most 100, got %d", cfg.WarningThresholdPercent)
	check(cfg.AxleTimeout > 0, "axle_timeout must be positive")
	check(cfg.SupervisorPeriod > 0, "supervisor_period must be positive")
	check(cfg.CaptureTimeout > 0, "capture_timeout must be positive")
	check(cfg.PublishTimeout > 0, "publish_timeout must be positive")
	check(cfg.QueueCapacity > 0, "queue_capacity must be positive")
	check(cfg.SubscriberBuffer > 0, "subscriber_buffer must be positive")

	check(cfg.Traffic.Interval > 0, "traffic.interval must be positive")
	check(cfg.Traffic.AxleGap > 0, "traffic.axle_gap must be positive")
	check(cfg.Traffic.Continuous || cfg.Traffic.Vehicles >= 0, "traffic.vehicles must not be negative")
	for i, spec := range cfg.Traffic.Scenario {
		check(spec.SpeedKmh > 0, "traffic.scenario[%d]: speed must be positive", i)
	}

	cam := cfg.Camera
	check(cam.Mode == CameraModeSimulated || cam.Mode == CameraModeMQTT, "camera.mode must be %q or %q, got %q", CameraModeSimulated, CameraModeMQTT, cam.Mode)
	check(cam.Latency >= 0, "camera.latency must not be negative")
	rates := []int{cam.FailureRatePercent, cam.SilenceRatePercent, cam.MalformedRatePercent}
	total := 0
	for _, r := range rates {
		check(r >= 0, "camera rates must not be negative")
		total += r
	}
	check(total <= 100, "camera rates add up to %d%%, more than 100%%", total)

	if cfg.Kafka.Enabled {
		check(cfg.Kafka.BrokerList != "", "kafka.broker_list is required when kafka is enabled")
		check(cfg.Kafka.Topic != "", "kafka.topic is required when kafka is enabled")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
