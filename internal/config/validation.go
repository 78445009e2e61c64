package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Validate checks the whole configuration and reports every problem found.
func (c RunboatConfig) Validate() error {
	var errs ValidationErrors

	ctl := c.Controller
	if ctl.MaxStarted < 0 {
		errs.Add("controller.maxStarted", "must not be negative", ctl.MaxStarted)
	}
	if ctl.Interval <= 0 {
		errs.Add("controller.interval", "must be positive", ctl.Interval)
	}
	if ctl.Workers < 1 {
		errs.Add("controller.workers", "must be at least 1", ctl.Workers)
	}
	if ctl.GatewayTimeout <= 0 {
		errs.Add("controller.gatewayTimeout", "must be positive", ctl.GatewayTimeout)
	}
	if ctl.IdleTimeout < 0 {
		errs.Add("controller.idleTimeout", "must not be negative", ctl.IdleTimeout)
	}
	if ctl.DeployTimeout < 0 {
		errs.Add("controller.deployTimeout", "must not be negative", ctl.DeployTimeout)
	}
	if ctl.RetryFailedAfter < 0 {
		errs.Add("controller.retryFailedAfter", "must not be negative", ctl.RetryFailedAfter)
	}
	if ctl.EventQueueSize < 1 {
		errs.Add("controller.eventQueueSize", "must be at least 1", ctl.EventQueueSize)
	}

	seen := make(map[string]bool, len(c.Repos))
	for i, repo := range c.Repos {
		field := fmt.Sprintf("repos[%d]", i)
		name := strings.ToLower(repo.Name)
		if !repoNamePattern.MatchString(repo.Name) {
			errs.Add(field+".name", "must have the form owner/name", repo.Name)
		} else if seen[name] {
			errs.Add(field+".name", "is listed more than once", repo.Name)
		}
		seen[name] = true

		if len(repo.Refs) == 0 {
			errs.Add(field+".refs", "must have at least one pattern")
		}
		for j, expr := range repo.Refs {
			if _, err := regexp.Compile(expr); err != nil {
				errs.Add(fmt.Sprintf("%s.refs[%d]", field, j), fmt.Sprintf("invalid regular expression: %v", err), expr)
			}
		}
	}

	if strings.TrimSpace(c.API.Listen) == "" {
		errs.Add("api.listen", "is required")
	}

	if strings.TrimSpace(c.Kubernetes.Namespace) == "" {
		errs.Add("kubernetes.namespace", "is required")
	}
	if c.Kubernetes.QPS < 0 {
		errs.Add("kubernetes.qps", "must not be negative", c.Kubernetes.QPS)
	}
	if c.Kubernetes.Burst < 0 {
		errs.Add("kubernetes.burst", "must not be negative", c.Kubernetes.Burst)
	}

	if err := ValidateOneOf("log.level", strings.ToLower(c.Log.Level), []string{"debug", "info", "warn", "error"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if err := ValidateOneOf("log.format", strings.ToLower(c.Log.Format), []string{"text", "json"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
