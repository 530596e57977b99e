// Package session implements the per-client session table: one session
// per transport address, created on login and destroyed on logoff,
// session-level error, or daemon shutdown.
package session

import (
	"sync"

	"github.com/nabbar/golib/internal/handle"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/transport"
)

// InfoFormat selects the session's catalog-text rendering variant.
type InfoFormat uint8

const (
	InfoFormatRISCOS InfoFormat = iota
	InfoFormatSJ
)

// Session is per-client state keyed by transport address.
type Session struct {
	Addr transport.Addr

	Login string
	Priv  proto.Priv
	Opt4  int

	URD int // user-root handle
	CSD int // current-directory handle
	LIB int // library handle

	Handles *handle.Table

	InfoFormat InfoFormat
	// CountSJSubentries gates the extra per-subdirectory scan in SJ-mode
	// long-text catalog rendering. Defaults true to match
	// reference-visible behavior; set false to skip the expensive path.
	CountSJSubentries bool
	SafeHandles       bool
}

func newSession(addr transport.Addr) *Session {
	return &Session{
		Addr:              addr,
		SafeHandles:       true,
		CountSJSubentries: true,
		Handles:           handle.New(true),
	}
}

// Table is the process-wide session table, keyed by transport address.
// Single-threaded dispatch means no locking is required for lookups during
// normal request processing; the mutex here only guards against the rare
// concurrent housekeeping call (e.g. listing users for a reply while the
// main loop is between requests).
type Table struct {
	mu   sync.Mutex
	byID map[string]*Session
}

func NewTable() *Table {
	return &Table{byID: make(map[string]*Session)}
}

func key(a transport.Addr) string {
	return a.Network() + "/" + a.String()
}

// Lookup returns the session for addr, or nil.
func (t *Table) Lookup(addr transport.Addr) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[key(addr)]
}

// Create replaces (or creates) the session for addr — at most one session
// per transport address.
func (t *Table) Create(addr transport.Addr) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := newSession(addr)
	t.byID[key(addr)] = s
	return s
}

// Destroy removes the session for addr, closing all of its open handles.
func (t *Table) Destroy(addr transport.Addr) error {
	t.mu.Lock()
	s, ok := t.byID[key(addr)]
	if ok {
		delete(t.byID, key(addr))
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Handles.CloseAll()
}

// All returns every active session, for Get-users-on / Get-user.
func (t *Table) All() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	return out
}
