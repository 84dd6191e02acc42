package manager

import "fmt"

// validationError signals an unknown or inaccessible model (400 mapping).
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation constructs a validationError.
func ErrValidation(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a model validation failure.
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// capacityError signals that no deployment slot or port is available, or
// that the model id is already deployed (409 mapping).
type capacityError struct{ msg string }

func (e capacityError) Error() string { return e.msg }

// ErrCapacity constructs a capacityError.
func ErrCapacity(format string, args ...any) error {
	return capacityError{msg: fmt.Sprintf(format, args...)}
}

// IsCapacity reports whether err indicates an exhausted slot or port budget.
func IsCapacity(err error) bool {
	_, ok := err.(capacityError)
	return ok
}

// launchError signals that the container runtime failed to start the
// deployment (502 mapping).
type launchError struct {
	modelID string
	cause   error
}

func (e launchError) Error() string {
	return fmt.Sprintf("launch failed for %s: %v", e.modelID, e.cause)
}

func (e launchError) Unwrap() error { return e.cause }

// IsLaunch reports whether err is a container launch failure.
func IsLaunch(err error) bool {
	_, ok := err.(launchError)
	return ok
}

// notFoundError signals a spindown target that is not in the registry.
type notFoundError struct{ target string }

func (e notFoundError) Error() string { return "deployment not found: " + e.target }

// ErrNotFound constructs a notFoundError.
func ErrNotFound(target string) error { return notFoundError{target: target} }

// IsNotFound reports whether err refers to an unknown deployment.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
