package affinity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("affinity: invalid argument")
	ErrInvalidOperation = errors.New("affinity: invalid operation")

	// ErrNotOnOwnerThread is returned when the host could not supply the owner
	// queue, typically because the first use came from a non-owner goroutine.
	ErrNotOnOwnerThread = fmt.Errorf("%w: the first use of the dispatcher must come from the owner goroutine; "+
		"call InitializeWith with an explicit queue otherwise", ErrInvalidOperation)

	// ErrNoOwnerHandle is returned when resolution succeeded but produced no queue.
	ErrNoOwnerHandle = fmt.Errorf("%w: unable to find a suitable owner queue", ErrInvalidOperation)

	// ErrAlreadyBound is returned by InitializeWith once the dispatcher is terminal.
	ErrAlreadyBound = fmt.Errorf("%w: dispatcher is already bound", ErrInvalidOperation)
)
