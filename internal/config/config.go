package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Kismet    KismetConfig    `yaml:"kismet"`
	Output    OutputConfig    `yaml:"output"`
	Altitude  AltitudeConfig  `yaml:"altitude"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	UDP       UDPConfig       `yaml:"udp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type KismetConfig struct {
	Addr         string        `yaml:"addr"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	BurstWindow  int64         `yaml:"burst_window"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
}

type OutputConfig struct {
	Path string `yaml:"path"`
}

type AltitudeConfig struct {
	Source     string  `yaml:"source"`
	I2CBus     string  `yaml:"i2c_bus"`
	I2CAddr    uint16  `yaml:"i2c_addr"`
	SeaLevelPa float64 `yaml:"sea_level_pa"`
	OffsetM    float64 `yaml:"offset_m"`
	FixedM     float64 `yaml:"fixed_m"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// UDPConfig forwards each observation as a JSON datagram.
type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type IndicatorConfig struct {
	Enable  bool          `yaml:"enable"`
	GPIOPin int           `yaml:"gpio_pin"`
	Pulse   time.Duration `yaml:"pulse"`
}

// Option adjusts a loaded config before it is validated. Command-line
// overrides are applied this way.
type Option func(*Config)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Kismet: KismetConfig{
			Addr:         "127.0.0.1:2501",
			DialTimeout:  2 * time.Second,
			BurstWindow:  2,
			MaxLineBytes: 64 * 1024,
		},
		Altitude: AltitudeConfig{
			Source:     "bmp280",
			I2CBus:     "/dev/i2c-1",
			I2CAddr:    0x77,
			SeaLevelPa: 101325,
		},
		MQTT: MQTTConfig{
			ClientID: "kismet-baro",
			Topic:    "kismet-baro/observations",
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9108",
		},
		Indicator: IndicatorConfig{
			Pulse: 20 * time.Millisecond,
		},
	}
}

// Load reads path on top of the defaults, applies opts and validates the
// result. An empty path skips the file.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Kismet.Addr = strings.TrimSpace(c.Kismet.Addr)
	if c.Kismet.Addr == "" {
		return fmt.Errorf("kismet.addr is required")
	}
	if c.Kismet.DialTimeout <= 0 {
		c.Kismet.DialTimeout = 2 * time.Second
	}
	if c.Kismet.BurstWindow < 0 {
		return fmt.Errorf("kismet.burst_window must be >= 0")
	}
	if c.Kismet.MaxLineBytes <= 0 {
		c.Kismet.MaxLineBytes = 64 * 1024
	}

	c.Output.Path = strings.TrimSpace(c.Output.Path)
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}

	c.Altitude.Source = strings.ToLower(strings.TrimSpace(c.Altitude.Source))
	switch c.Altitude.Source {
	case "":
		c.Altitude.Source = "bmp280"
	case "bmp280", "bmxx80", "fixed":
	default:
		return fmt.Errorf("altitude.source must be one of bmp280, bmxx80, fixed (got %q)", c.Altitude.Source)
	}
	if c.Altitude.SeaLevelPa <= 0 {
		c.Altitude.SeaLevelPa = 101325
	}

	if c.MQTT.Enable {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if strings.TrimSpace(c.MQTT.Topic) == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt.enable is true")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if c.UDP.Enable && strings.TrimSpace(c.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if c.Metrics.Enable && strings.TrimSpace(c.Metrics.Listen) == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enable is true")
	}

	if c.Indicator.Enable {
		if c.Indicator.GPIOPin <= 0 {
			return fmt.Errorf("indicator.gpio_pin must be > 0 when indicator.enable is true")
		}
		if c.Indicator.Pulse <= 0 {
			c.Indicator.Pulse = 20 * time.Millisecond
		}
	}
	return nil
}

// IsI2C reports whether the altitude source talks to an I2C bus.
func (a AltitudeConfig) IsI2C() bool {
	return a.Source == "bmp280" || a.Source == "bmxx80"
}
