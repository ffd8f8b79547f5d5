package elector

import "errors"

var (
	ErrNilRunner              = errors.New("runner cannot be nil")
	ErrSessionTimeoutTooShort = errors.New("session timeout is too short")
	ErrAlreadyStarted         = errors.New("elector already started")
	ErrNotLeader              = errors.New("elector is not the leader")
)
