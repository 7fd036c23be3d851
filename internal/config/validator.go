// validator.go - Configuration validation.
//
// Every setting is checked at startup and all problems are reported together,
// so a misconfigured deployment fails fast with one readable message.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects configuration errors.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Err returns the collected errors as one error, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return fmt.Errorf("%s", v.ErrorString())
}

// Required records an error when value is empty.
func (v *Validator) Required(key, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// URL validates that a value is an http(s) URL.
func (v *Validator) URL(key, value string) {
	if value == "" {
		return // Skip validation if empty (check with Required first)
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
		return
	}
	if parsed.Host == "" {
		v.AddError(key, "URL must include a host")
	}
}

// Addr validates a listen address of the form "host:port" or ":port".
func (v *Validator) Addr(key, value string) {
	if value == "" {
		return
	}

	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		v.AddError(key, "must be host:port or :port")
		return
	}
	v.Port(key, value[idx+1:])
}

// Port validates that a value is a valid port number.
func (v *Validator) Port(key, value string) {
	if value == "" {
		return
	}

	port, err := strconv.Atoi(value)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// Enum validates that a value is one of allowed options.
func (v *Validator) Enum(key, value string, allowed []string) {
	if value == "" {
		return
	}

	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// PositiveInt parses a positive integer, returning def when value is empty.
func (v *Validator) PositiveInt(key, value string, def int64) int64 {
	if value == "" {
		return def
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return def
	}

	if num <= 0 {
		v.AddError(key, "must be a positive integer")
		return def
	}
	return num
}

// Duration parses a positive Go duration such as "30s" or "48h".
func (v *Validator) Duration(key, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		v.AddError(key, "must be a valid duration (e.g., 30s, 10m, 48h)")
		return def
	}
	if d <= 0 {
		v.AddError(key, "must be a positive duration")
		return def
	}
	return d
}

// Fraction parses a float in [0, 1].
func (v *Validator) Fraction(key, value string, def float64) float64 {
	if value == "" {
		return def
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		v.AddError(key, "must be a number")
		return def
	}
	if f < 0 || f > 1 {
		v.AddError(key, "must be between 0 and 1")
		return def
	}
	return f
}

// Bool parses "true"/"false"/"1"/"0".
func (v *Validator) Bool(key, value string, def bool) bool {
	if value == "" {
		return def
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		v.AddError(key, "must be true or false")
		return def
	}
	return b
}

// EmailAddress validates basic email format.
func (v *Validator) EmailAddress(key, value string) {
	if value == "" {
		return
	}

	at := strings.LastIndex(value, "@")
	if at < 1 || !strings.Contains(value[at:], ".") {
		v.AddError(key, "must be a valid email address")
	}
}
