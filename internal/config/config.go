// Package config loads the gateway configuration: a yaml file overlaid with
// environment variables, so container deployments can override single values
// without shipping a file.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// MAVLink addressing. The GCS ids are what this engine sends as and
	// accepts messages addressed to; the target ids name the vehicle.
	GCSSystemID     uint8 `yaml:"gcs_system_id" env:"ML_GCS_SYSTEM_ID"`
	GCSComponentID  uint8 `yaml:"gcs_component_id" env:"ML_GCS_COMPONENT_ID"`
	TargetSystemID  uint8 `yaml:"target_system_id" env:"ML_TARGET_SYSTEM_ID"`
	AutopilotCompID uint8 `yaml:"autopilot_component_id" env:"ML_AUTOPILOT_COMPONENT_ID"`

	// Whether the vehicle advertises MISSION_ITEM_INT support. The
	// heartbeat layer normally fills this in; it is configuration here.
	MissionInt bool `yaml:"mission_int" env:"ML_MISSION_INT"`

	RetryTimeout   time.Duration `yaml:"retry_timeout" env:"ML_RETRY_TIMEOUT"`
	ProcessTimeout time.Duration `yaml:"process_timeout" env:"ML_PROCESS_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"ML_MAX_RETRIES"`

	Link Link `yaml:"link"`
	MQTT MQTT `yaml:"mqtt"`
	Log  Log  `yaml:"log"`
}

type Link struct {
	// "serial", "udp" or "udp-listen".
	Type    string `yaml:"type" env:"ML_LINK_TYPE"`
	Device  string `yaml:"device" env:"ML_LINK_DEVICE"`
	Baud    int    `yaml:"baud" env:"ML_LINK_BAUD"`
	Address string `yaml:"address" env:"ML_LINK_ADDRESS"`
}

type MQTT struct {
	BrokerAddress string `yaml:"broker_address" env:"ML_MQTT_BROKER"`
	DeviceID      string `yaml:"device_id" env:"ML_DEVICE_ID"`
}

type Log struct {
	File       string `yaml:"file" env:"ML_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"ML_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"ML_LOG_MAX_BACKUPS"`
}

func Default() Config {
	return Config{
		GCSSystemID:     245,
		GCSComponentID:  190,
		TargetSystemID:  1,
		AutopilotCompID: 1,
		MissionInt:      true,
		RetryTimeout:    time.Second,
		ProcessTimeout:  10 * time.Second,
		MaxRetries:      3,
		Link: Link{
			Type: "udp",
			Baud: 57600,
		},
		Log: Log{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Load reads the yaml file (optional, pass "" to skip) and applies env
// overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parsing config file")
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing environment")
	}

	return cfg, nil
}
