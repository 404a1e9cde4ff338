package email

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every validation failure raised by this package.
var ErrInvalid = errors.New("invalid email")

// Error is the single error kind for invalid message configuration.
// Callers tell failures apart by message text.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is reports whether target is ErrInvalid.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

func errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
