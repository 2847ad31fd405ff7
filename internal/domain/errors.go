package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks a value-object construction failure. Value
// objects never clamp out-of-range inputs; they reject them.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrDuplicateInvariant is returned when registering an invariant
// whose id is already present in a registry.
var ErrDuplicateInvariant = errors.New("invariant already registered")

// ErrEmptySamples is returned when a statistic is requested over an
// empty sample set.
var ErrEmptySamples = errors.New("cannot compute statistics from empty samples")

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
