// Package transport defines the contract shared by the two datagram
// encapsulations the server can speak (direct AUN over UDP, and the
// BeebEm four-way emulation), and the station-address type both use.
package transport

import (
	"context"
)

// Addr is an opaque transport address, compared byte-wise by both
// implementations (an AUN UDP endpoint, or a BeebEm logical station).
type Addr interface {
	// Network returns the implementation that produced this address ("aun"
	// or "beebem"), mirroring net.Addr's Network/String split.
	Network() string
	String() string
	// Equal reports whether other identifies the same peer.
	Equal(other Addr) bool
}

// Transport is the polymorphic contract both encapsulations implement.
// Selected once at startup from configuration.
type Transport interface {
	// Setup binds the underlying socket(s).
	Setup() error

	// Recv blocks for the next frame destined to wantPort (any port if 0)
	// from any address (any if from is nil). Immediate/machine-peek
	// requests are answered inline and never surfaced to the caller.
	// Unicast frames are auto-acknowledged before Recv returns.
	Recv(ctx context.Context, wantPort int) (frame []byte, from Addr, err error)

	// Xmit transmits frame to dest. For unicast destinations it waits for a
	// matching ack, retransmitting on a bounded retry budget.
	Xmit(frame []byte, dest Addr) (int, error)

	// Ntoa renders addr the way the protocol's text forms expect it.
	Ntoa(addr Addr) string

	// GetStation returns the 2-byte logical station address for addr.
	GetStation(addr Addr) [2]byte

	// MaxBlock is the largest payload chunk a single datagram can carry.
	MaxBlock() int

	// Close releases any bound sockets.
	Close() error
}
