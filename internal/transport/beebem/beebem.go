// Package beebem implements the emulated transport: a station table maps
// logical 2-byte station addresses to (IP, UDP port),
// and a four-way handshake (scout -> ack -> payload -> ack) substitutes for
// the real Econet wire, broadcasting sends to every other configured
// station the way a shared bus would.
package beebem

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nabbar/golib/duration"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/transport"
)

// Station is one entry of the station table.
type Station struct {
	Net     uint8
	Station uint8
	IP      net.IP
	Port    int
}

// Addr identifies a logical station.
type Addr struct {
	Net     uint8
	Station uint8
}

func (a Addr) Network() string { return "beebem" }
func (a Addr) String() string  { return net.JoinHostPort(string(rune(a.Net)), string(rune(a.Station))) }
func (a Addr) Equal(other transport.Addr) bool {
	o, ok := other.(Addr)
	return ok && o == a
}

var ErrUnknownStation = errors.New("beebem: station not in table")
var ErrTimeout = errors.New("beebem: retry budget exceeded")
var ErrConfused = errors.New("beebem: frame from unexpected peer")

const maxRetries = 50

// defaultPollPeriod bounds how long each read waits before rechecking ctx
// or retransmitting, expressed with the same config-friendly
// duration.Duration type internal/transport/aun uses.
var defaultPollPeriod = duration.ParseDuration(100 * time.Millisecond)

// Transport implements transport.Transport over a single nonblocking UDP
// socket, emulating Econet's four-way handshake per frame.
type Transport struct {
	conn *net.UDPConn

	mu       sync.RWMutex
	stations []Station
	self     Station

	// RequireExactSourcePort, when true, rejects ingress frames whose
	// source UDP port doesn't match the station table entry exactly.
	RequireExactSourcePort bool

	// PollPeriod overrides defaultPollPeriod when non-zero.
	PollPeriod duration.Duration
}

func New(self Station, stations []Station) *Transport {
	return &Transport{self: self, stations: stations, PollPeriod: defaultPollPeriod}
}

func (t *Transport) pollPeriod() time.Duration {
	if t.PollPeriod == 0 {
		return defaultPollPeriod.Time()
	}
	return t.PollPeriod.Time()
}

func (t *Transport) Setup() error {
	conn, e := net.ListenUDP("udp4", &net.UDPAddr{Port: t.self.Port})
	if e != nil {
		return e
	}
	_ = conn.SetReadBuffer(1 << 20)
	t.conn = conn
	return nil
}

func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) lookup(a Addr) (Station, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stations {
		if s.Net == a.Net && s.Station == a.Station {
			return s, true
		}
	}
	return Station{}, false
}

func (t *Transport) lookupByPeer(ip net.IP, port int) (Station, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.stations {
		if !s.IP.Equal(ip) {
			continue
		}
		if t.RequireExactSourcePort && s.Port != port {
			continue
		}
		return s, true
	}
	return Station{}, false
}

// scout is the 6-byte handshake-opening datagram: destination station,
// source station, control byte, destination port.
type scout struct {
	destNet, destStn uint8
	srcNet, srcStn   uint8
	control          uint8
	destPort         uint8
}

func (s scout) encode() []byte {
	return []byte{s.destNet, s.destStn, s.srcNet, s.srcStn, s.control, s.destPort}
}

func decodeScout(b []byte) (scout, bool) {
	if len(b) < 6 {
		return scout{}, false
	}
	return scout{b[0], b[1], b[2], b[3], b[4], b[5]}, true
}

func (t *Transport) Recv(ctx context.Context, wantPort int) ([]byte, transport.Addr, error) {
	buf := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.pollPeriod()))
		n, from, e := t.conn.ReadFromUDP(buf)
		if e != nil {
			if ne, ok := e.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, nil, e
		}

		sc, ok := decodeScout(buf[:n])
		if !ok {
			continue
		}

		peer, ok := t.lookupByPeer(from.IP, from.Port)
		if !ok {
			continue
		}

		// ack the scout
		_, _ = t.conn.WriteToUDP([]byte{0}, from)

		// await the payload frame
		_ = t.conn.SetReadDeadline(time.Now().Add(t.pollPeriod()))
		pn, pfrom, e := t.conn.ReadFromUDP(buf)
		if e != nil || !pfrom.IP.Equal(from.IP) {
			continue
		}

		// ack the payload
		_, _ = t.conn.WriteToUDP([]byte{0}, from)

		if wantPort != 0 && int(sc.destPort) != wantPort {
			continue
		}

		frame := append([]byte(nil), buf[:pn]...)
		return frame, Addr{Net: peer.Net, Station: peer.Station}, nil
	}
}

func (t *Transport) Xmit(frame []byte, dest transport.Addr) (int, error) {
	d, ok := dest.(Addr)
	if !ok {
		return 0, errors.New("beebem: foreign address type")
	}

	targets := []Station{}
	if s, ok := t.lookup(d); ok {
		targets = append(targets, s)
	} else {
		t.mu.RLock()
		targets = append(targets, t.stations...)
		t.mu.RUnlock()
	}

	var n int
	for _, s := range targets {
		if e := t.sendOne(frame, s); e != nil {
			return n, e
		}
		n = len(frame)
	}
	return n, nil
}

func (t *Transport) sendOne(frame []byte, dest Station) error {
	addr := &net.UDPAddr{IP: dest.IP, Port: dest.Port}
	sc := scout{destNet: dest.Net, destStn: dest.Station, srcNet: t.self.Net, srcStn: t.self.Station, destPort: 0}

	ack := make([]byte, 16)
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, e := t.conn.WriteToUDP(sc.encode(), addr); e != nil {
			return e
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.pollPeriod()))
		_, from, e := t.conn.ReadFromUDP(ack)
		if e != nil {
			if ne, ok := e.(net.Error); ok && ne.Timeout() {
				continue
			}
			return e
		}
		if !from.IP.Equal(dest.IP) {
			continue
		}

		if _, e := t.conn.WriteToUDP(frame, addr); e != nil {
			return e
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.pollPeriod()))
		_, _, e = t.conn.ReadFromUDP(ack)
		if e != nil {
			if ne, ok := e.(net.Error); ok && ne.Timeout() {
				continue
			}
			return e
		}

		return nil
	}

	return ErrTimeout
}

func (t *Transport) Ntoa(addr transport.Addr) string {
	a, ok := addr.(Addr)
	if !ok {
		return addr.String()
	}
	s, ok := t.lookup(a)
	if !ok {
		return addr.String()
	}
	return s.IP.String()
}

func (t *Transport) GetStation(addr transport.Addr) [2]byte {
	a, ok := addr.(Addr)
	if !ok {
		return [2]byte{}
	}
	return [2]byte{a.Station, a.Net}
}

func (t *Transport) MaxBlock() int {
	return proto.MaxBlock
}
