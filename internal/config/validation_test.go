package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *RunboatConfig)
		fields []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *RunboatConfig) {},
		},
		{
			name:   "zero budget is allowed",
			mutate: func(c *RunboatConfig) { c.Controller.MaxStarted = 0 },
		},
		{
			name: "controller limits",
			mutate: func(c *RunboatConfig) {
				c.Controller.MaxStarted = -1
				c.Controller.Interval = 0
				c.Controller.Workers = 0
				c.Controller.GatewayTimeout = 0
				c.Controller.IdleTimeout = -1
				c.Controller.DeployTimeout = -1
				c.Controller.RetryFailedAfter = -1
				c.Controller.EventQueueSize = 0
			},
			fields: []string{
				"controller.maxStarted",
				"controller.interval",
				"controller.workers",
				"controller.gatewayTimeout",
				"controller.idleTimeout",
				"controller.deployTimeout",
				"controller.retryFailedAfter",
				"controller.eventQueueSize",
			},
		},
		{
			name: "repositories",
			mutate: func(c *RunboatConfig) {
				c.Repos = []RepoConfig{
					{Name: "acme/shop", Refs: []string{"^main$"}},
					{Name: "ACME/shop", Refs: []string{"^main$"}},
					{Name: "no-owner", Refs: []string{"("}},
					{Name: "acme/docs"},
				}
			},
			fields: []string{"repos[1].name", "repos[2].name", "repos[2].refs[0]", "repos[3].refs"},
		},
		{
			name: "api and kubernetes",
			mutate: func(c *RunboatConfig) {
				c.API.Listen = " "
				c.Kubernetes.Namespace = ""
				c.Kubernetes.QPS = -1
				c.Kubernetes.Burst = -1
			},
			fields: []string{"api.listen", "kubernetes.namespace", "kubernetes.qps", "kubernetes.burst"},
		},
		{
			name: "logging",
			mutate: func(c *RunboatConfig) {
				c.Log.Level = "verbose"
				c.Log.Format = "xml"
			},
			fields: []string{"log.level", "log.format"},
		},
		{
			name: "log settings are case insensitive",
			mutate: func(c *RunboatConfig) {
				c.Log.Level = "DEBUG"
				c.Log.Format = "JSON"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}

			verrs, ok := err.(ValidationErrors)
			if !assert.True(t, ok, "expected ValidationErrors, got %T", err) {
				return
			}
			var fields []string
			for _, ve := range verrs {
				fields = append(fields, ve.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is wrong")
	assert.Equal(t, "field 'a': is wrong", errs.Error())

	errs.Add("", "something else")
	assert.Equal(t, "validation failed: field 'a': is wrong; something else", errs.Error())
}
