// Package lifecycle sequences the startup, readiness wait, and graceful
// shutdown of the daemon's components (transport, user provider, request
// server). It is a slimmed-down counterpart of the reference's component
// orchestrator: same Start-in-order/Stop-in-reverse-order discipline and
// signal-driven shutdown, without viper-backed dynamic reload or dependency
// graphs — this daemon's three components have a fixed, linear order.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	liberr "github.com/nabbar/golib/errors"
)

// component codes registered with the shared error-code space.
const baseCode liberr.CodeError = 41000

const (
	codeStart liberr.CodeError = baseCode + iota
	codeStop
)

func init() {
	liberr.RegisterIdFctMessage(baseCode, func(code liberr.CodeError) string {
		switch code {
		case codeStart:
			return "component start failed"
		case codeStop:
			return "component stop failed"
		}
		return liberr.NullMessage
	})
}

// Component is one independently startable/stoppable part of the daemon.
type Component interface {
	// Name identifies the component in logs and error messages.
	Name() string

	// Start brings the component up. It must return once the component is
	// ready to serve, or with an error if it cannot start.
	Start(ctx context.Context) error

	// Stop brings the component down. Best-effort: it does not return an
	// error, mirroring the reference's Component.Stop() contract.
	Stop()
}

// Manager starts components in registration order and stops them in
// reverse order, the same discipline the reference's dependency-sorted
// Config.Start/Stop collapse to for a fixed, already-ordered component list.
type Manager struct {
	mu         sync.Mutex
	components []Component
	started    []Component
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{}
}

// Register appends a component to the start order.
func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, c)
}

// Start starts every registered component in order. If one fails, every
// component already started is stopped (in reverse order) before the error
// is returned, so a failed Start never leaves a partial daemon running.
func (m *Manager) Start(ctx context.Context) liberr.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components {
		if err := c.Start(ctx); err != nil {
			m.stopLocked()
			return codeStart.Error(err)
		}
		m.started = append(m.started, c)
	}
	return nil
}

// Stop stops every started component in reverse start order.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	for i := len(m.started) - 1; i >= 0; i-- {
		m.started[i].Stop()
	}
	m.started = nil
}

// WaitNotify blocks until ctx is cancelled or the process receives SIGINT,
// SIGTERM or SIGQUIT, returning only once a shutdown has been requested.
func WaitNotify(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	}
}
