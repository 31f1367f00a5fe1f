package pipeline

import "errors"

// Sentinel errors surfaced to callers for exit-code and HTTP mapping.
var (
	// ErrNoDomain means Run was invoked without a target domain.
	ErrNoDomain = errors.New("no scan domain provided")

	// ErrInvalidDomain means the target did not normalize to a valid
	// domain name.
	ErrInvalidDomain = errors.New("invalid scan domain")
)

// ErrorCode maps a pipeline error to a process exit code: 0 success,
// 2 usage (bad input), 1 everything else.
func ErrorCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoDomain), errors.Is(err, ErrInvalidDomain):
		return 2
	default:
		return 1
	}
}
