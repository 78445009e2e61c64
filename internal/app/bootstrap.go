package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"runboat/internal/config"
	"runboat/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs the runboat controller.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, wire services
//  2. Execution phase: run the control loop and the HTTP API until signalled
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, initializes logging and wires every
// service. Nothing is started yet.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg.RunboatConfig == nil {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load runboat configuration: %w", err)
		}
		cfg.RunboatConfig = &loaded
	}

	initLogging(cfg)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) {
	level := logging.ParseLevel(cfg.RunboatConfig.Log.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var output io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		output = cfg.LogOutput
	}
	logging.Init(level, logging.Format(strings.ToLower(cfg.RunboatConfig.Log.Format)), output)
}

// Run executes the application until ctx is cancelled or a termination
// signal arrives.
func (a *Application) Run(ctx context.Context) error {
	return runController(ctx, a.services)
}

// Services exposes the wired services.
func (a *Application) Services() *Services {
	return a.services
}
