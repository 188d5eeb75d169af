package configuration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	RSSIPolicyLatest = "latest"
	RSSIPolicyMean   = "mean"
)

func defaultConfiguration() Configuration {
	return Configuration{
		MqttConfiguration: MqttConfiguration{
			Address:  "localhost",
			Port:     1883,
			Topic:    "msh/#",
			ClientID: "mesh2graph",
		},
		BackoffConfiguration: BackoffConfiguration{
			MinSeconds:         1,
			MaxSeconds:         60,
			StableResetSeconds: 60,
		},
		ExportConfiguration: ExportConfiguration{
			DataDirectory: "./data",
			RSSIPolicy:    RSSIPolicyLatest,
		},
		DatabasePath: "./mesh_messages.db",
		LogLevel:     2,
	}
}

func Load(filename string) (*Configuration, error) {
	cfg := defaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Configuration) Validate() error {
	if c.MqttConfiguration.Address == "" {
		return fmt.Errorf("mqtt address is required")
	}
	if c.MqttConfiguration.Port == 0 {
		return fmt.Errorf("mqtt port is required")
	}
	if c.MqttConfiguration.Topic == "" {
		return fmt.Errorf("mqtt topic is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.BackoffConfiguration.MinSeconds == 0 ||
		c.BackoffConfiguration.MaxSeconds < c.BackoffConfiguration.MinSeconds {
		return fmt.Errorf("invalid backoff configuration: min=%v max=%v",
			c.BackoffConfiguration.MinSeconds, c.BackoffConfiguration.MaxSeconds)
	}
	switch c.ExportConfiguration.RSSIPolicy {
	case RSSIPolicyLatest, RSSIPolicyMean:
	default:
		return fmt.Errorf("unknown rssi_policy %q", c.ExportConfiguration.RSSIPolicy)
	}
	return nil
}
