package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Everything except ErrConfiguration and ErrAllSourcesFailed is
// non-fatal and stays isolated to the stage it came from.
var (
	// ErrSourceUnavailable marks a provider that failed to fetch this cycle
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAIUnavailable marks an annotation that could not be produced
	ErrAIUnavailable = errors.New("AI analysis unavailable")

	// ErrDeliveryFailure marks an alert that a channel failed to deliver
	ErrDeliveryFailure = errors.New("delivery failure")

	// ErrConfiguration marks missing or invalid required configuration
	ErrConfiguration = errors.New("configuration error")

	// ErrAllSourcesFailed is returned by a scan when no provider produced data
	ErrAllSourcesFailed = errors.New("all data sources failed")
)

// SourceError wraps a provider failure
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// NewSourceError wraps err as a SourceError unless it already is one
func NewSourceError(source string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) && se.Source == source {
		return err
	}
	return &SourceError{Source: source, Err: err}
}

// AllSourcesFailedError carries the individual source failures of a scan
type AllSourcesFailedError struct {
	Failures []error
}

func (e *AllSourcesFailedError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%s: %s", ErrAllSourcesFailed, strings.Join(msgs, "; "))
}

func (e *AllSourcesFailedError) Unwrap() []error {
	return append([]error{ErrAllSourcesFailed}, e.Failures...)
}

// DeliveryError wraps a channel failure
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailure, e.Err}
}

// ConfigurationError lists the blocking configuration issues
type ConfigurationError struct {
	Issues []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Issues, "; "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
