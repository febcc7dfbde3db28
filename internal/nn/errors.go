package nn

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is wrapped by every error returned from configuration
	// validation and component construction.
	ErrConfig = errors.New("configuration error")

	// ErrContract is wrapped by the error value of every call-time panic:
	// mismatched widths, language ids out of range, or an incremental cache
	// from another layer, stack or session.
	ErrContract = errors.New("contract violation")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// violation panics with an error wrapping ErrContract.
func violation(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", ErrContract, fmt.Sprintf(format, args...)))
}
