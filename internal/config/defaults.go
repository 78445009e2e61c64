package config

import "time"

// EnvWebhookSecret overrides api.webhookSecret so the secret can stay out of
// the configuration file.
const EnvWebhookSecret = "RUNBOAT_GITHUB_WEBHOOK_SECRET"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() RunboatConfig {
	return RunboatConfig{
		Controller: ControllerConfig{
			MaxStarted:       10,
			IdleTimeout:      2 * time.Hour,
			Interval:         5 * time.Second,
			Workers:          4,
			GatewayTimeout:   30 * time.Second,
			DeployTimeout:    15 * time.Minute,
			RetryFailedAfter: time.Hour,
			EventQueueSize:   1024,
		},
		API: APIConfig{
			Listen: ":8080",
		},
		Kubernetes: KubernetesConfig{
			Namespace: "runboat-builds",
			QPS:       20,
			Burst:     40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
