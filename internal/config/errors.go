package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`    // Full path to the file that caused the error
	ErrorType   string   `json:"errorType"`   // Type of error (io, parse, validation)
	Message     string   `json:"message"`     // Human-readable error message
	LineNumber  int      `json:"lineNumber"`  // Line number where error occurred (if available)
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error

	Err error `json:"-"`
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	if ce.LineNumber > 0 {
		return fmt.Sprintf("%s error in %s (line %d): %s", ce.ErrorType, ce.FilePath, ce.LineNumber, ce.Message)
	}
	return fmt.Sprintf("%s error in %s: %s", ce.ErrorType, ce.FilePath, ce.Message)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration error in %s", ce.FilePath),
		fmt.Sprintf("  Type: %s", ce.ErrorType),
	}
	if ce.LineNumber > 0 {
		parts = append(parts, fmt.Sprintf("  Line: %d", ce.LineNumber))
	}
	parts = append(parts, fmt.Sprintf("  Error: %s", ce.Message))

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// newParseError wraps a yaml.v3 error, extracting the first line number it
// mentions.
func newParseError(path string, err error) *ConfigurationError {
	ce := &ConfigurationError{
		FilePath:  path,
		ErrorType: "parse",
		Message:   err.Error(),
		Err:       err,
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		ce.Message = strings.Join(typeErr.Errors, "; ")
		ce.Suggestions = append(ce.Suggestions, "Durations use Go syntax such as 30s, 15m or 2h")
	}
	if m := yamlLinePattern.FindStringSubmatch(ce.Message); m != nil {
		ce.LineNumber, _ = strconv.Atoi(m[1])
	}
	return ce
}

func newValidationError(path string, err error) *ConfigurationError {
	return &ConfigurationError{
		FilePath:  path,
		ErrorType: "validation",
		Message:   err.Error(),
		Err:       err,
	}
}
