// Password-file provider (grounded on pw.c): colon-separated records
// `user:pwhash:urd:priv:opt4` (opt4 optional), rewritten atomically via
// temp-file + rename on every mutation.
package user

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	liberr "github.com/nabbar/golib/errors"
	ioutils "github.com/nabbar/golib/ioutils"
	"github.com/nabbar/golib/internal/proto"
)

type record struct {
	login string
	hash  string
	urd   string
	priv  Priv
	opt4  int
}

// PasswordFile implements Provider against a colon-separated password
// file.
type PasswordFile struct {
	path string

	mu      sync.Mutex
	records map[string]record
}

func NewPasswordFile(path string) (*PasswordFile, error) {
	p := &PasswordFile{path: path, records: make(map[string]record)}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PasswordFile) reload() error {
	f, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	recs := make(map[string]record)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}

		r := record{login: fields[0], hash: fields[1], urd: fields[2]}
		if pv, err := strconv.Atoi(fields[3]); err == nil {
			r.priv = Priv(pv)
		}
		if len(fields) >= 5 {
			if o, err := strconv.Atoi(fields[4]); err == nil {
				r.opt4 = o
			}
		}

		recs[strings.ToLower(r.login)] = r
	}

	p.mu.Lock()
	p.records = recs
	p.mu.Unlock()

	return sc.Err()
}

func (p *PasswordFile) save() error {
	p.mu.Lock()
	recs := make([]record, 0, len(p.records))
	for _, r := range p.records {
		recs = append(recs, r)
	}
	p.mu.Unlock()

	tmp, terr := ioutils.NewTempFile()
	if terr != nil {
		return terr
	}
	tmpPath := ioutils.GetTempFilePath(tmp)

	w := bufio.NewWriter(tmp)
	for _, r := range recs {
		fmt.Fprintf(w, "%s:%s:%s:%d:%d\n", r.login, r.hash, r.urd, r.priv, r.opt4)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, p.path)
}

func (p *PasswordFile) lookup(login string) (record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[strings.ToLower(login)]
	return r, ok
}

var errBadUser = liberr.New(40100, "user: unknown login")
var errWrongPassword = liberr.New(40101, "user: wrong password")

// Validate checks login/password; an empty stored hash means no password
// is required.
func (p *PasswordFile) Validate(login, password string) (string, int, error) {
	r, ok := p.lookup(login)
	if !ok {
		return "", 0, errBadUser
	}

	if r.hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(r.hash), []byte(password)); err != nil {
			return "", 0, errWrongPassword
		}
	}

	return r.urd, r.opt4, nil
}

func (p *PasswordFile) URD(login string) (string, error) {
	r, ok := p.lookup(login)
	if !ok {
		return "", errBadUser
	}
	return r.urd, nil
}

func (p *PasswordFile) Change(login, oldpw, newpw string) error {
	r, ok := p.lookup(login)
	if !ok {
		return errBadUser
	}
	if r.hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(r.hash), []byte(oldpw)); err != nil {
			return errWrongPassword
		}
	}

	h, err := bcrypt.GenerateFromPassword([]byte(newpw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.mu.Lock()
	r.hash = string(h)
	p.records[strings.ToLower(login)] = r
	p.mu.Unlock()

	return p.save()
}

func (p *PasswordFile) SetOpt4(login string, value int) error {
	p.mu.Lock()
	r, ok := p.records[strings.ToLower(login)]
	if !ok {
		p.mu.Unlock()
		return errBadUser
	}
	r.opt4 = value
	p.records[strings.ToLower(login)] = r
	p.mu.Unlock()

	return p.save()
}

func (p *PasswordFile) SetPriv(callerPriv Priv, login string, newPriv Priv) error {
	if callerPriv != proto.PrivSyst {
		return liberr.New(40102, "user: insufficient privilege")
	}

	p.mu.Lock()
	r, ok := p.records[strings.ToLower(login)]
	if !ok {
		p.mu.Unlock()
		return errBadUser
	}
	r.priv = newPriv
	p.records[strings.ToLower(login)] = r
	p.mu.Unlock()

	return p.save()
}

func (p *PasswordFile) GetPriv(login string) Priv {
	r, ok := p.lookup(login)
	if !ok {
		return proto.PrivNone
	}
	return r.priv
}
