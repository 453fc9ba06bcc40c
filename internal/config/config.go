// Package config loads the daemon configuration and the three JSON
// domain files describing the warehouse.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the daemon configuration. Values come from an optional
// config file, AGV_* environment variables, and defaults, in that
// order of precedence.
type Config struct {
	MapFile     string `mapstructure:"map_file" validate:"required"`
	RobotsFile  string `mapstructure:"robots_file" validate:"required"`
	ShelvesFile string `mapstructure:"shelves_file" validate:"required"`

	WSHost string `mapstructure:"ws_host" validate:"required"`
	WSPort int    `mapstructure:"ws_port" validate:"gt=0,lte=65535"`

	MQTTHost string `mapstructure:"mqtt_host" validate:"required"`
	MQTTPort int    `mapstructure:"mqtt_port" validate:"gt=0,lte=65535"`

	Speed      float64 `mapstructure:"speed" validate:"gt=0"`
	MaxTime    int     `mapstructure:"max_time" validate:"gt=0"`
	StayAtGoal int     `mapstructure:"stay_at_goal" validate:"gte=0"`

	// ArrivalTimeoutPerHop is the watchdog budget in seconds per node
	// of a published path.
	ArrivalTimeoutPerHop float64 `mapstructure:"arrival_timeout_per_hop" validate:"gt=0"`

	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	JournalPath string `mapstructure:"journal_path"`
}

// WSAddr returns the operator listen address.
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort)
}

// BrokerURL returns the MQTT broker URL.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTHost, c.MQTTPort)
}

// Load reads configuration. file may be empty: environment variables
// and defaults alone are a valid setup.
func Load(file string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AGV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("map_file", "config/map.json")
	v.SetDefault("robots_file", "config/robots.json")
	v.SetDefault("shelves_file", "config/shelves.json")
	v.SetDefault("ws_host", "0.0.0.0")
	v.SetDefault("ws_port", 8765)
	v.SetDefault("mqtt_host", "localhost")
	v.SetDefault("mqtt_port", 1883)
	v.SetDefault("speed", 0.3)
	v.SetDefault("max_time", 50)
	v.SetDefault("stay_at_goal", 3)
	v.SetDefault("arrival_timeout_per_hop", 10.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("journal_path", "")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
