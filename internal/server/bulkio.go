// Bulk-transfer-backed handlers: Save, Load, Get-bytes, Put-bytes. Every
// offset here is the explicit 32-bit field carried in the request, never an
// implicit "continue from where the last chunk left off" counter — the
// reference's random-access get/putbytes variants are folded into the
// general path by always honoring the offset the client sent.
package server

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/nabbar/golib/internal/bulk"
	"github.com/nabbar/golib/internal/meta"
	"github.com/nabbar/golib/internal/nametrans"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/protoerr"
)

func (s *Server) hGetBytes(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 8 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	hd := c.session.Handles.Get(int(d[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}
	offset := int64(proto.Uint32LE(d[1:5]))
	size := int64(proto.Uint24LE(d[5:8]))

	if _, serr := hd.File.Seek(offset, 0); serr != nil {
		s.errorReply(c, protoerr.OutsideFile)
		return
	}

	// The request's URD byte is reused as the data-port reply port for
	// bulk transfers, not validated as a handle (fs_fileio.c's getbytes).
	replyPort := c.req.URD
	n, xerr := bulk.Send(s.tr, c.from, hd.File, size, replyPort, uint8(c.req.Header.Seq))
	if xerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(xerr)))
		return
	}
	s.reply(c, proto.CCDone, proto.AppendUint24LE(nil, uint32(n)))
}

func (s *Server) hPutBytes(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 8 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	hd := c.session.Handles.Get(int(d[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}
	if hd.ReadOnly {
		s.errorReply(c, protoerr.Locked)
		return
	}
	offset := int64(proto.Uint32LE(d[1:5]))
	size := int64(proto.Uint24LE(d[5:8]))

	if _, serr := hd.File.Seek(offset, 0); serr != nil {
		s.errorReply(c, protoerr.OutsideFile)
		return
	}

	ackPort := c.req.URD
	n, rerr := bulk.Receive(ctx, s.tr, c.from, hd.File, size, ackPort)
	if rerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(rerr)))
		return
	}
	s.reply(c, proto.CCDone, proto.AppendUint24LE(nil, uint32(n)))
}

func (s *Server) hSave(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 12 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	load := proto.Uint32LE(d[0:4])
	exec := proto.Uint32LE(d[4:8])
	size := int64(proto.Uint24LE(d[8:11]))
	name, _, ok := proto.CutCRString(d[11:])
	if !ok {
		s.errorReply(c, protoerr.BadCmd)
		return
	}

	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.BadName)
		return
	}
	full := filepath.Join(s.root, rel)

	if !s.canCreateIn(c.session, filepath.Dir(full)) {
		s.errorReply(c, protoerr.NoAccess)
		return
	}

	f, cerr := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if cerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(cerr)))
		return
	}
	defer f.Close()

	ackPort := c.req.URD
	n, rerr := bulk.Receive(ctx, s.tr, c.from, f, size, ackPort)
	if rerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(rerr)))
		return
	}

	dir, leaf := filepath.Split(full)
	_ = meta.Write(dir, leaf, meta.Meta{Load: load, Exec: exec})

	dd := proto.EncodeDate(time.Now())
	data := []byte{0, dd[0], dd[1]}
	data = proto.AppendUint24LE(data, uint32(n))
	s.reply(c, proto.CCSave, data)
}

func (s *Server) hLoad(ctx context.Context, c *ctxReq) {
	name, _, ok := proto.CutCRString(c.req.Data)
	if !ok {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	full := filepath.Join(s.root, rel)

	fi, serr := os.Stat(full)
	if serr != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	if fi.IsDir() {
		s.errorReply(c, protoerr.IsDir)
		return
	}

	f, oerr := os.Open(full)
	if oerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(oerr)))
		return
	}
	defer f.Close()

	dir, leaf := filepath.Split(full)
	typ := s.types.Guess(leaf, fi.Mode())
	m, _ := meta.Read(dir, leaf, uint8(typ))

	replyPort := c.req.URD
	n, xerr := bulk.Send(s.tr, c.from, f, fi.Size(), replyPort, uint8(c.req.Header.Seq))
	if xerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(xerr)))
		return
	}

	data := proto.AppendUint32LE(nil, m.Load)
	data = proto.AppendUint32LE(data, m.Exec)
	data = proto.AppendUint24LE(data, uint32(n))
	s.reply(c, proto.CCLoad, data)
}
