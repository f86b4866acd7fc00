package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure so the engine can pick a recovery path.
type Kind int

const (
	// KindTransient covers network failures, timeouts, and 5xx responses.
	// The engine retries these with backoff.
	KindTransient Kind = iota

	// KindAuth means stored credentials are expired or revoked. The engine
	// moves to reauth-required and pauses pushes.
	KindAuth

	// KindPermanent means the request can never succeed (list deleted,
	// malformed task). The mutation is dropped and the task flagged.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Error wraps a remote failure with its classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err. Unclassified errors are treated
// as transient: a failure we cannot name is one we retry and let the next
// snapshot fetch reconcile.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// IsAuth reports whether err is an auth-expired failure.
func IsAuth(err error) bool { return err != nil && KindOf(err) == KindAuth }

// IsPermanent reports whether err is a permanent rejection.
func IsPermanent(err error) bool { return err != nil && KindOf(err) == KindPermanent }
