package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks unusable input: an empty composition, an
	// unparseable manifest line, a nonsensical option value.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or contradictory configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a media reference that resolves neither locally
	// nor remotely.
	ErrNotFound = errors.New("not found")
	// ErrEncoding marks an encoder subprocess failure or missing output.
	ErrEncoding = errors.New("encoding error")
	// ErrExternalService marks a speech-service request failure.
	ErrExternalService = errors.New("external service error")
	// ErrQuotaExceeded marks a synthesis request refused because it would
	// overrun the character budget.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrCacheIO marks an unreadable or unwritable artifact store.
	ErrCacheIO = errors.New("cache io error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether a narration failure may degrade the scene to
// silence instead of failing the whole composition.
func Recoverable(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrExternalService)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
