package quorum

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrNoMasters         = errors.New("no masters configured")
	ErrQuorumNotAchieved = errors.New("quorum not achieved")
)

// NewKind returns an error kind that also matches ErrQuorumNotAchieved, for
// primitive failures meaning a majority did not confirm the call.
func NewKind(text string) error {
	return &kindError{text: text}
}

type kindError struct {
	text string
}

func (k *kindError) Error() string {
	return k.text
}

func (k *kindError) Is(target error) bool {
	return target == ErrQuorumNotAchieved
}

// Error is returned by the primitives when a round failed. Kind is a sentinel
// of the failing primitive and Err holds the per-master errors seen in the round.
type Error struct {
	Kind    error
	Key     string
	Masters []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: key=%s masters=[%s]", e.Kind, e.Key, strings.Join(e.Masters, ","))
	if e.Err != nil {
		fmt.Fprintf(&b, " errors=[%v]", e.Err)
	}
	return b.String()
}

// Is matches the kind, and whatever the kind itself matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errors returns the per-master errors.
func (e *Error) Errors() []error {
	return multierr.Errors(e.Err)
}
