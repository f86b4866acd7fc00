package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil is transient default", nil, KindTransient},
		{"plain error is transient", errors.New("boom"), KindTransient},
		{"auth", &Error{Kind: KindAuth, Op: "x", Err: errors.New("401")}, KindAuth},
		{"permanent", &Error{Kind: KindPermanent, Op: "x", Err: errors.New("404")}, KindPermanent},
		{"wrapped", fmt.Errorf("outer: %w", &Error{Kind: KindAuth, Op: "x", Err: errors.New("401")}), KindAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &Error{Kind: KindTransient, Op: "snapshot", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap does not expose the inner error")
	}
	if err.Error() == "" {
		t.Error("empty error string")
	}
}

func TestIsHelpers(t *testing.T) {
	auth := &Error{Kind: KindAuth, Op: "x", Err: errors.New("401")}
	perm := &Error{Kind: KindPermanent, Op: "x", Err: errors.New("404")}

	if !IsAuth(auth) || IsAuth(perm) || IsAuth(nil) {
		t.Error("IsAuth misclassifies")
	}
	if !IsPermanent(perm) || IsPermanent(auth) || IsPermanent(nil) {
		t.Error("IsPermanent misclassifies")
	}
}
