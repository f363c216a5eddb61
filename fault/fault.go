package fault

import (
	"errors"
	"fmt"
)

var (
	// Bus or device setup failed. The device must not enter the control loop.
	ErrConfiguration = errors.New("configuration failure")
	// A single read or command failed. Skip the affected decision and carry on.
	ErrTransientIO = errors.New("transient io failure")
	// Something that can never be valid, like a scale with an empty raw range.
	ErrInvariant = errors.New("logic invariant violation")
)

type classified struct {
	class error
	err   error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%s: %s", c.class, c.err)
}

func (c *classified) Unwrap() []error {
	return []error{c.class, c.err}
}

func wrap(class error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, class) {
		return err
	}

	return &classified{class: class, err: err}
}

func Configuration(err error) error {
	return wrap(ErrConfiguration, err)
}

func Transient(err error) error {
	return wrap(ErrTransientIO, err)
}

func Invariant(err error) error {
	return wrap(ErrInvariant, err)
}

// Fatal reports whether err must stop the device instead of being retried on
// the next cycle.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvariant)
}
