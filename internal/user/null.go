package user

import (
	"errors"

	"github.com/nabbar/golib/internal/proto"
)

var errReadOnly = errors.New("user: null provider is read-only")

// NullProvider implements Provider for anonymous access against a single
// shared user root directory (grounded on user_null.c): Validate and URD
// always succeed, Change/SetOpt4/SetPriv always fail.
type NullProvider struct {
	URDPath     string
	DefaultOpt4 int
}

func NewNull(urd string, defaultOpt4 int) *NullProvider {
	return &NullProvider{URDPath: urd, DefaultOpt4: defaultOpt4}
}

func (n *NullProvider) Validate(login, password string) (string, int, error) {
	return n.URDPath, n.DefaultOpt4, nil
}

func (n *NullProvider) URD(login string) (string, error) {
	return n.URDPath, nil
}

func (n *NullProvider) Change(login, oldpw, newpw string) error {
	return errReadOnly
}

func (n *NullProvider) SetOpt4(login string, value int) error {
	return errReadOnly
}

func (n *NullProvider) SetPriv(callerPriv Priv, login string, newPriv Priv) error {
	return errReadOnly
}

func (n *NullProvider) GetPriv(login string) Priv {
	return proto.PrivNone
}
