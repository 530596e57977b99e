// Package user defines the credential/privilege Provider contract and its
// two implementations: a null provider for anonymous single-root service
// (grounded on user_null.c) and a password-file provider (grounded on
// pw.c).
package user

import (
	"github.com/nabbar/golib/internal/proto"
)

// Priv mirrors proto.Priv for callers that don't want the wire package
// dependency.
type Priv = proto.Priv

// Provider validates credentials and manages per-user state.
type Provider interface {
	// Validate checks login/password and returns the user's root
	// directory and boot option. An empty password is accepted when the
	// stored hash is empty.
	Validate(login, password string) (urd string, opt4 int, err error)

	// URD returns login's root directory without checking a password.
	URD(login string) (string, error)

	// Change updates login's password, checking oldpw first.
	Change(login, oldpw, newpw string) error

	// SetOpt4 updates login's boot option.
	SetOpt4(login string, value int) error

	// SetPriv updates login's privilege; callerPriv gates the operation
	// (only system privilege may change another user's privilege).
	SetPriv(callerPriv Priv, login string, newPriv Priv) error

	// GetPriv returns login's privilege level.
	GetPriv(login string) Priv
}
