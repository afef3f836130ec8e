package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalid       = errors.New("invalid")
	ErrInternal      = errors.New("internal")
	ErrAIUnavailable = errors.New("ai not configured")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
