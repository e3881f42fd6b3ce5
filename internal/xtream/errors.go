package xtream

import (
	"errors"
	"fmt"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

// ErrAuth is returned by FetchAccount when the provider rejects the credentials.
var ErrAuth = errors.New("authentication failed")

// TransportError is a network failure or a non-200 response.
type TransportError struct {
	URL        string // credentials redacted
	StatusCode int    // 0 for network errors
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("xtream: GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("xtream: GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is classifies the error as catalog.ErrTransport.
func (e *TransportError) Is(target error) bool { return target == catalog.ErrTransport }

// DecodeError means a 200 response matched none of the expected shapes.
type DecodeError struct {
	URL    string // credentials redacted
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xtream: decode %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("xtream: decode %s: %s", e.URL, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is classifies the error as catalog.ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == catalog.ErrDecode }
