package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"runboat/pkg/logging"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "runboat.yaml"

// LoadConfig reads, defaults and validates the configuration file at path.
// A missing file yields the defaults.
func LoadConfig(path string) (RunboatConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No configuration found at %s, using defaults", path)
	case err != nil:
		return RunboatConfig{}, &ConfigurationError{FilePath: path, ErrorType: "io", Message: err.Error(), Err: err}
	default:
		if err := decode(data, &config); err != nil {
			return RunboatConfig{}, newParseError(path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return RunboatConfig{}, newValidationError(path, err)
	}
	return config, nil
}

// decode unmarshals data over the defaults already in config. Unknown keys
// are rejected so that typos do not silently fall back to defaults.
func decode(data []byte, config *RunboatConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(config *RunboatConfig) {
	if secret, ok := os.LookupEnv(EnvWebhookSecret); ok {
		config.API.WebhookSecret = secret
	}
}
