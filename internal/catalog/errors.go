package catalog

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can classify with errors.Is.
var (
	// ErrTransport is a network or HTTP failure. Fatal only for the account check.
	ErrTransport = errors.New("transport error")
	// ErrDecode means a response matched none of the expected shapes.
	ErrDecode = errors.New("decode error")
	// ErrMalformedRecord means a record lacks a required id or name.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrFileSystem means an output directory or file could not be created or written.
	ErrFileSystem = errors.New("file system error")
)

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFileSystem)
}
