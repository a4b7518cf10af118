package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// config is read from the YAML file, flags given on the command line win
type config struct {
	LogLevel         string            `yaml:"log_level"`
	Timeout          Duration          `yaml:"timeout"`
	Effect           string            `yaml:"effect"`
	Duration         Duration          `yaml:"duration"`
	DiscoveryTimeout Duration          `yaml:"discovery_timeout"`
	Interface        string            `yaml:"interface"`
	AutoOn           bool              `yaml:"auto_on"`
	Bulbs            map[string]string `yaml:"bulbs"` // name -> host[:port]
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ``
	}
	return filepath.Join(dir, `goyeelight`, `config.yaml`)
}

// loadConfig reads path, a missing file yields an empty config
func loadConfig(path string) (*config, error) {
	cfg := &config{}
	if path == `` {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
