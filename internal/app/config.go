package app

import (
	"io"

	"runboat/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// Local replaces the Kubernetes gateway with an in-memory one, for
	// trying the controller without a cluster.
	Local bool

	// ConfigPath is the runboat configuration file.
	ConfigPath string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// RunboatConfig is the loaded file. When set before NewApplication, the
	// file is not read.
	RunboatConfig *config.RunboatConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug, local bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Local:      local,
		ConfigPath: configPath,
	}
}
