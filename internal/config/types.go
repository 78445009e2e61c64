package config

import "time"

// RunboatConfig is the top-level configuration structure for runboat.
type RunboatConfig struct {
	Controller ControllerConfig `yaml:"controller"`
	Repos      []RepoConfig     `yaml:"repos,omitempty"`
	API        APIConfig        `yaml:"api"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Log        LogConfig        `yaml:"log"`
}

// ControllerConfig holds the control loop settings and the build budget.
type ControllerConfig struct {
	MaxStarted       int           `yaml:"maxStarted"`
	IdleTimeout      time.Duration `yaml:"idleTimeout"`
	Interval         time.Duration `yaml:"interval"`
	Workers          int           `yaml:"workers"`
	GatewayTimeout   time.Duration `yaml:"gatewayTimeout"`
	DeployTimeout    time.Duration `yaml:"deployTimeout"`
	RetryFailedAfter time.Duration `yaml:"retryFailedAfter"`
	EventQueueSize   int           `yaml:"eventQueueSize"`
}

// RepoConfig selects the refs of one repository that get builds.
type RepoConfig struct {
	Name         string   `yaml:"name"`
	Refs         []string `yaml:"refs"`
	PullRequests bool     `yaml:"pullRequests,omitempty"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Listen        string `yaml:"listen"`
	WebhookSecret string `yaml:"webhookSecret,omitempty"`
}

// KubernetesConfig configures the cluster gateway.
type KubernetesConfig struct {
	Namespace    string            `yaml:"namespace"`
	Kubeconfig   string            `yaml:"kubeconfig,omitempty"`
	Template     string            `yaml:"template,omitempty"`
	ImagePattern string            `yaml:"imagePattern,omitempty"`
	Values       map[string]string `yaml:"values,omitempty"`
	QPS          float64           `yaml:"qps"`
	Burst        int               `yaml:"burst"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
