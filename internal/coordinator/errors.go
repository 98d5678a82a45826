package coordinator

import "errors"

var (
	// ErrAuthRequired is returned when a refresh is attempted without an
	// authenticated session. No network call is made.
	ErrAuthRequired = errors.New("login required")

	// ErrVehicleNotFound is returned when the configured VIN is not on
	// the account.
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// RefreshError wraps a failed refresh. The previous snapshot is retained
// and the next scheduled tick retries.
type RefreshError struct {
	err error
}

func (e *RefreshError) Error() string {
	return "refresh failed: " + e.err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.err
}
