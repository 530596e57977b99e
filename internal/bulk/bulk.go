// Package bulk implements the data-port transfer loop used by getbytes,
// putbytes, load and save (grounded on fs_fileio.c's fs_data_send and
// fs_data_recv): one or more chunk datagrams carrying up to a
// transport's MaxBlock bytes, each flagged with the low bit of the
// request's sequence number so retransmitted requests can be told apart
// from new ones.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/transport"
)

var ErrConfused = errors.New("bulk: reply from unexpected peer")

// Send streams size bytes read from r to dest on replyPort, chunked to
// tr's MaxBlock. seqFlag is the low bit of the triggering request's
// sequence number, echoed on every chunk so the client can match
// retransmits. It returns the number of bytes actually read and sent;
// a short read (including EOF before size bytes) ends the transfer
// without error, matching the reference's "or error" exit.
func Send(tr transport.Transport, dest transport.Addr, r io.Reader, size int64, replyPort uint8, seqFlag uint8) (int64, error) {
	block := int64(tr.MaxBlock())
	buf := make([]byte, block)

	var done int64
	for size > 0 {
		this := size
		if this > block {
			this = block
		}

		n, rerr := io.ReadFull(r, buf[:this])
		if n > 0 {
			hdr := proto.Header{
				Type:     proto.PacketUnicast,
				DestPort: replyPort,
				Flag:     seqFlag & 1,
			}
			frame := append(hdr.Encode(), buf[:n]...)
			if _, xerr := tr.Xmit(frame, dest); xerr != nil {
				return done, xerr
			}
			done += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return done, nil
			}
			return done, rerr
		}

		size -= this
	}

	return done, nil
}

// Receive reads size bytes from the data port into w, chunked to
// whatever the peer sends, ack-ing every chunk but the last on
// ackPort. Unlike the reference implementation (whose returned byte
// count is never incremented off zero), Receive accumulates and
// returns the true total written.
func Receive(ctx context.Context, tr transport.Transport, from transport.Addr, w io.Writer, size int64, ackPort uint8) (int64, error) {
	var done int64

	for size > 0 {
		frame, peer, err := tr.Recv(ctx, proto.PortData)
		if err != nil {
			return done, err
		}
		if !peer.Equal(from) {
			return done, fmt.Errorf("%w: got %s, want %s", ErrConfused, peer, from)
		}

		if _, herr := proto.DecodeHeader(frame); herr != nil {
			return done, herr
		}
		payload := frame[proto.HeaderLen:]

		n, werr := w.Write(payload)
		if werr != nil {
			return done, werr
		}
		done += int64(n)
		size -= int64(len(payload))

		if size > 0 {
			ackHdr := proto.Header{
				Type:     proto.PacketUnicast,
				DestPort: ackPort,
				Flag:     0,
			}
			ackFrame := append(ackHdr.Encode(), 0)
			if _, xerr := tr.Xmit(ackFrame, from); xerr != nil {
				return done, xerr
			}
		}
	}

	return done, nil
}
