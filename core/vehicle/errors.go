package vehicle

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandRejected is wrapped by CommandError when the vehicle refused
	// a command.
	ErrCommandRejected = errors.New("command rejected")
	// ErrUnavailable marks failures that are expected to clear on their own,
	// such as a sleeping vehicle or a wake failure.
	ErrUnavailable = errors.New("vehicle temporarily unavailable")
)

// CommandError carries the vendor reason for a rejected command.
type CommandError struct {
	Command   string
	Reason    string
	Retryable bool
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Reason)
}

// Is matches ErrCommandRejected, and ErrUnavailable for retryable rejections.
func (e *CommandError) Is(target error) bool {
	if target == ErrCommandRejected {
		return true
	}
	return e.Retryable && target == ErrUnavailable
}
