package store

import "errors"

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrUnexpectedReply = errors.New("unexpected script reply")
)
