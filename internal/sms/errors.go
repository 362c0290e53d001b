// Package sms holds the outbound SMS carriers and phone number normalization.
package sms

import (
	"errors"
	"fmt"
)

// ProviderError is a carrier rejection. Permanent errors must not be retried.
type ProviderError struct {
	Permanent  bool
	StatusCode int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Code != 0 {
		return fmt.Sprintf("sms provider %s error %d (status %d): %s", kind, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sms provider %s error (status %d): %s", kind, e.StatusCode, e.Message)
}

// IsPermanent reports whether err carries a permanent carrier rejection.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}
