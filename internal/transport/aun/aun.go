// Package aun implements the direct-UDP transport encapsulation:
// unicast/broadcast frames carry an 8-byte header (type, dest port,
// flag, retrans, 4-byte little-endian sequence) straight over UDP port
// 32768, with zero-payload acks and an inline machine-peek responder.
package aun

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

// Addr wraps a UDP endpoint.
type Addr struct {
	UDP net.UDPAddr
}

func (a Addr) Network() string { return "aun" }
func (a Addr) String() string  { return a.UDP.String() }
func (a Addr) Equal(other transport.Addr) bool {
	o, ok := other.(Addr)
	return ok && o.UDP.IP.Equal(a.UDP.IP) && o.UDP.Port == a.UDP.Port
}

// Version is the 4-byte server-identification tuple returned for an
// immediate/machine-peek request.
var Version = [4]byte{0, 0, 0, 0}

var ErrTimeout = errors.New("aun: transmit retry budget exceeded")

const maxRetries = 50

// defaultRetryPeriod is how long Xmit waits for an ack before
// retransmitting a unicast frame, expressed with the same config-friendly
// duration.Duration type the rest of this pack uses for tunable intervals.
var defaultRetryPeriod = duration.ParseDuration(500 * time.Millisecond)

// Transport implements transport.Transport over a single UDP socket bound
// to proto.PortAUN.
type Transport struct {
	conn *net.UDPConn

	mu     sync.Mutex
	seqGen uint32

	// RetryPeriod overrides defaultRetryPeriod when non-zero (config.Config
	// has no knob for it yet, but New's caller may set it directly).
	RetryPeriod duration.Duration
}

func New() *Transport {
	return &Transport{seqGen: 2, RetryPeriod: defaultRetryPeriod}
}

func (t *Transport) retryPeriod() time.Duration {
	if t.RetryPeriod == 0 {
		return defaultRetryPeriod.Time()
	}
	return t.RetryPeriod.Time()
}

func (t *Transport) Setup() error {
	conn, e := net.ListenUDP("udp4", &net.UDPAddr{Port: proto.PortAUN})
	if e != nil {
		return e
	}
	t.conn = conn
	return nil
}

func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) nextSeq() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.seqGen
	t.seqGen += 4
	return s
}

func (t *Transport) Recv(ctx context.Context, wantPort int) ([]byte, transport.Addr, error) {
	buf := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, e := t.conn.ReadFromUDP(buf)
		if e != nil {
			if ne, ok := e.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, nil, e
		}

		frame := append([]byte(nil), buf[:n]...)
		hdr, e := proto.DecodeHeader(frame)
		if e != nil {
			continue
		}

		src := Addr{UDP: *from}

		switch hdr.Type {
		case proto.PacketImmediate:
			t.replyImmediate(hdr, from)
			continue
		case proto.PacketAck, proto.PacketReject:
			// Handled synchronously inside Xmit; a stray ack here is stale.
			continue
		case proto.PacketUnicast:
			t.ack(hdr, from, proto.PacketAck)
		}

		if wantPort != 0 && int(hdr.DestPort) != wantPort {
			continue
		}

		return frame, src, nil
	}
}

func (t *Transport) replyImmediate(hdr proto.Header, from *net.UDPAddr) {
	reply := proto.Header{Type: proto.PacketImmReply, Seq: hdr.Seq}
	b := append(reply.Encode(), Version[:]...)
	_, _ = t.conn.WriteToUDP(b, from)
}

func (t *Transport) ack(hdr proto.Header, from *net.UDPAddr, kind proto.PacketType) {
	a := proto.Header{Type: kind, Seq: hdr.Seq}
	_, _ = t.conn.WriteToUDP(a.Encode(), from)
}

func (t *Transport) Xmit(frame []byte, dest transport.Addr) (int, error) {
	d, ok := dest.(Addr)
	if !ok {
		return 0, errors.New("aun: foreign address type")
	}

	hdr, e := proto.DecodeHeader(frame)
	if e != nil {
		return 0, e
	}

	n, e := t.conn.WriteToUDP(frame, &d.UDP)
	if e != nil {
		return n, e
	}

	if hdr.Type != proto.PacketUnicast {
		return n, nil
	}

	ackBuf := make([]byte, proto.HeaderLen)
	for attempt := 0; attempt < maxRetries; attempt++ {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.retryPeriod()))
		rn, from, e := t.conn.ReadFromUDP(ackBuf)
		if e != nil {
			if ne, ok := e.(net.Error); ok && ne.Timeout() {
				_, _ = t.conn.WriteToUDP(frame, &d.UDP)
				continue
			}
			return n, e
		}

		ah, e := proto.DecodeHeader(ackBuf[:rn])
		if e != nil || ah.Type != proto.PacketAck || ah.Seq != hdr.Seq || !from.IP.Equal(d.UDP.IP) {
			continue
		}

		return n, nil
	}

	return n, ErrTimeout
}

func (t *Transport) Ntoa(addr transport.Addr) string {
	return addr.String()
}

func (t *Transport) GetStation(addr transport.Addr) [2]byte {
	a, ok := addr.(Addr)
	if !ok {
		return [2]byte{}
	}
	ip := a.UDP.IP.To4()
	if ip == nil {
		return [2]byte{}
	}
	return [2]byte{ip[3], 0}
}

func (t *Transport) MaxBlock() int {
	return proto.MaxBlock
}

// NextSeq exposes the sequence generator for callers (e.g. the dispatcher)
// building request frames addressed through this transport.
func (t *Transport) NextSeq() uint32 {
	return t.nextSeq()
}
