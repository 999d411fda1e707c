package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every pipeline component. Callers match them with
// errors.Is; UpstreamError is matched with errors.As.
var (
	// ErrNetworkUnavailable is a transient transport failure.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrNetworkTimeout is a transient timeout talking to the API.
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrCacheMiss reports that nothing was ever cached for a window.
	// It triggers a network fallback and never reaches top-level callers.
	ErrCacheMiss = errors.New("cache miss")
	// ErrInvalidWindow is a reversed or malformed date range.
	ErrInvalidWindow = errors.New("invalid date window")
	// ErrPaginationExhausted means the page ceiling was hit before the
	// server reported the last page.
	ErrPaginationExhausted = errors.New("pagination exhausted")
)

// UpstreamError is any other API failure, propagated verbatim.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream HTTP %d", e.Status)
	}
	return fmt.Sprintf("upstream HTTP %d: %s", e.Status, e.Message)
}

// IsTransient reports whether err is a network failure a caller may retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrNetworkTimeout)
}
