package errx

import "fmt"

// Wrap chains a package sentinel error with an underlying cause so that
// errors.Is matches both. A nil cause returns the sentinel unchanged.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Wrapf chains a sentinel with a formatted message.
func Wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
