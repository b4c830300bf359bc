package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// config is the optional CLI config file, loaded only from the path given
// with --config; without --config, or when that path does not exist, no file
// is read and no aliases apply. It currently holds only method aliases, e.g.
//
//	aliases:
//	  check: health.check
//
// letting `plexus check` stand in for `plexus health.check`.
type config struct {
	Aliases map[string]string `yaml:"aliases"`
}

func loadConfig(path string) (config, error) {
	if path == "" {
		return config{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config{}, nil
	}
	if err != nil {
		return config{}, err
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) resolve(method string) string {
	if full, ok := c.Aliases[method]; ok {
		return full
	}
	return method
}
