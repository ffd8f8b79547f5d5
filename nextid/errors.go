package nextid

import "errors"

var (
	ErrEmptyKey        = errors.New("id generator key cannot be empty")
	ErrInvalidNumTries = errors.New("number of tries must be positive")
	ErrInvalidCounter  = errors.New("stored counter is not an integer")
)
