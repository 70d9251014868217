package logview

import "github.com/cockroachdb/errors"

// --------------------------------------------------------------------------
// Error Taxonomy
// --------------------------------------------------------------------------

var (
	// ErrVersionConflict is reported when a write was rejected because the backend holds a newer version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrTransport is reported when a backend or another cluster could not be reached.
	ErrTransport = errors.New("transport failure")
	// ErrViewTransition is reported when the host failed to apply an entry to a view.
	ErrViewTransition = errors.New("view transition failed")
	// ErrConfiguration is returned by the provider constructors for invalid configurations.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInactive is returned by blocking adaptor methods if the adaptor is not active.
	ErrInactive = errors.New("adaptor is not active")
)

// ConflictError returns an error marked as ErrVersionConflict.
func ConflictError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrVersionConflict)
}

// TransportError wraps err and marks it as ErrTransport.
func TransportError(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrTransport)
}

// TransitionError wraps err and marks it as ErrViewTransition.
func TransitionError(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrViewTransition)
}

// ConfigurationError returns an error marked as ErrConfiguration.
func ConfigurationError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}
