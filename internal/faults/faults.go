// Package faults defines the error taxonomy shared across the evaluation
// engine. Components wrap these with eris for context; callers classify with
// the Is* helpers rather than matching strings.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input or a schema mismatch. It is
// surfaced to the caller immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError for the given field.
func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CapabilityError reports a failure or timeout from an external capability
// (extraction, component evaluation, research, synthesis). Transient
// instances are retried with backoff before being surfaced.
type CapabilityError struct {
	Capability string
	Err        error
	Timeout    bool
}

func (e *CapabilityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("capability %s: timeout: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("capability %s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapability wraps err as a CapabilityError for the named capability.
func NewCapability(capability string, err error) *CapabilityError {
	return &CapabilityError{Capability: capability, Err: err}
}

// NewCapabilityTimeout wraps err as a timed-out capability call.
func NewCapabilityTimeout(capability string, err error) *CapabilityError {
	return &CapabilityError{Capability: capability, Err: err, Timeout: true}
}

// IsCapability reports whether any error in the chain is a CapabilityError.
func IsCapability(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

// IsCapabilityTimeout reports whether the chain contains a capability
// timeout.
func IsCapabilityTimeout(err error) bool {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Timeout
	}
	return false
}

// ConflictError reports a version race on the record store that survived the
// internal retry budget. Callers should never see one under the serialized
// write discipline; it exists so exhaustion is distinguishable from data
// corruption.
type ConflictError struct {
	Key      string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q after %d attempts", e.Key, e.Attempts)
}

// IsConflict reports whether any error in the chain is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ConfigError reports an invalid configuration table (weights that do not
// sum to 1, a malformed severity rule). It is fatal at process startup.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Section, e.Reason)
}

// NewConfig builds a ConfigError for the given configuration section.
func NewConfig(section, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Reason: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether any error in the chain is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ErrNoResearchResults indicates every research agent in a fan-out failed,
// leaving synthesis nothing to run over. Partial failure is not an error;
// total failure is.
var ErrNoResearchResults = errors.New("research: no agent produced a result")
