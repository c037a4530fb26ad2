package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const templateHeader = "# gesk configuration. Environment (GESK_*) and flags override these values.\n"

// Template renders Default() with an example port filled in, as "toml" or "yaml".
func Template(format string) (string, error) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"

	var (
		body []byte
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "toml":
		body, err = toml.Marshal(cfg)
	case "yaml", "yml":
		body, err = yaml.Marshal(cfg)
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", format, err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
