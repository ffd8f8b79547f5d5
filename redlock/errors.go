package redlock

import (
	"errors"

	"github.com/git-hulk/go-quorum/quorum"
)

var (
	// ErrTooManyExtensions is returned without touching the masters once the
	// extension budget of the current lease is spent.
	ErrTooManyExtensions = errors.New("too many extensions")
	// The token is no longer held by a majority, both match quorum.ErrQuorumNotAchieved.
	ErrExtendUnlockedLock  = quorum.NewKind("extend of unlocked lock")
	ErrReleaseUnlockedLock = quorum.NewKind("release of unlocked lock")

	ErrEmptyKey               = errors.New("lock key cannot be empty")
	ErrInvalidAutoReleaseTime = errors.New("auto release time must be positive")
	ErrInvalidRetryDelay      = errors.New("retry delay must be positive")
	ErrInvalidNumExtensions   = errors.New("number of extensions cannot be negative")
	ErrTimeoutWithoutBlocking = errors.New("can't specify a timeout for a non-blocking call")
)
