// Package server implements the request dispatcher and command handlers of
// the file-service daemon: one Server owns a Transport, a session table, a
// user Provider and a served filesystem root, and turns incoming request
// frames into reply frames (grounded on fileserver.c's file_server/
// fs_dispatch and fs_cli.c's command interpreter).
package server

import (
	"context"
	"os"
	"path/filepath"

	"github.com/nabbar/golib/internal/fsops"
	"github.com/nabbar/golib/internal/handle"
	"github.com/nabbar/golib/internal/nametrans"
	"github.com/nabbar/golib/internal/protoerr"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/session"
	"github.com/nabbar/golib/internal/transport"
	"github.com/nabbar/golib/internal/typemap"
	"github.com/nabbar/golib/internal/user"
	"github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
)

// Config bundles everything a Server needs at construction. Log may be nil,
// in which case the deprecated package-default logger is used.
type Config struct {
	Transport  transport.Transport
	Users      user.Provider
	Types      *typemap.Map
	Root       string
	DiscName   string
	DefaultLib string
	Log        logger.FuncLog
}

// Server is the request dispatcher: one instance serves one disc rooted at
// Root over one Transport.
type Server struct {
	tr         transport.Transport
	users      user.Provider
	types      *typemap.Map
	root       string
	discName   string
	defaultLib string
	sessions   *session.Table
	log        logger.FuncLog
}

func New(cfg Config) *Server {
	return &Server{
		tr:         cfg.Transport,
		users:      cfg.Users,
		types:      cfg.Types,
		root:       cfg.Root,
		discName:   cfg.DiscName,
		defaultLib: cfg.DefaultLib,
		sessions:   session.NewTable(),
		log:        cfg.Log,
	}
}

func (s *Server) logEntry(lvl loglvl.Level, message string, args ...interface{}) {
	l := logger.GetDefault()
	if s.log != nil {
		l = s.log()
	}
	l.Entry(lvl, message, args...).Log()
}

// Serve processes requests one at a time until ctx is cancelled, over a
// transport the caller has already brought up with Setup (and will tear
// down with Close once Serve returns). Dispatch is deliberately
// single-threaded: the session table never needs locking against a
// concurrent request from the same or another client mid-handler.
func (s *Server) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, from, err := s.tr.Recv(ctx, proto.PortFS)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logEntry(loglvl.WarnLevel, "recv: %s", err)
			continue
		}

		req, derr := proto.DecodeRequest(frame)
		if derr != nil {
			s.logEntry(loglvl.WarnLevel, "malformed request from %s: %s", s.tr.Ntoa(from), derr)
			continue
		}

		c := &ctxReq{req: req, from: from, session: s.sessions.Lookup(from)}
		s.dispatch(ctx, c)
	}
}

// ctxReq carries one request through dispatch to its handler.
type ctxReq struct {
	req     proto.Request
	from    transport.Addr
	session *session.Session
}

func (s *Server) reply(c *ctxReq, cc proto.CommandCode, data []byte) {
	hdr := proto.Header{
		Type:     proto.PacketUnicast,
		DestPort: c.req.ReplyPort,
		Flag:     c.req.Header.Flag,
		Seq:      c.req.Header.Seq,
	}
	r := proto.NewReply(hdr, cc)
	r.Data = data
	if _, err := s.tr.Xmit(r.Encode(), c.from); err != nil {
		s.logEntry(loglvl.WarnLevel, "reply to %s: %s", s.tr.Ntoa(c.from), err)
	}
}

// errorReply always uses CCDone regardless of what failed: only ReturnCode
// and the message in Data vary, mirroring fs_error()'s uniform shape.
func (s *Server) errorReply(c *ctxReq, code protoerr.Code) {
	hdr := proto.Header{
		Type:     proto.PacketUnicast,
		DestPort: c.req.ReplyPort,
		Flag:     c.req.Header.Flag,
		Seq:      c.req.Header.Seq,
	}
	r := proto.NewReply(hdr, proto.CCDone)
	r.ReturnCode = byte(code)
	r.Data = proto.AppendCRString(nil, protoerr.Message(code))
	if _, err := s.tr.Xmit(r.Encode(), c.from); err != nil {
		s.logEntry(loglvl.WarnLevel, "error reply to %s: %s", s.tr.Ntoa(c.from), err)
	}
}

// bases resolves a session's URD/CSD/LIB handles to filesystem paths for
// name translation.
func (s *Server) bases(sess *session.Session) nametrans.Bases {
	b := nametrans.Bases{Root: s.root}
	if sess == nil {
		return b
	}
	if h := sess.Handles.Get(sess.URD); h != nil {
		b.URD = h.Path
	}
	if h := sess.Handles.Get(sess.CSD); h != nil {
		b.CSD = h.Path
	}
	if h := sess.Handles.Get(sess.LIB); h != nil {
		b.LIB = h.Path
	}
	return b
}

// isOwner reports whether full lies under sess's URD.
func (s *Server) isOwner(sess *session.Session, full string) bool {
	urd := ""
	if h := sess.Handles.Get(sess.URD); h != nil {
		urd = h.Path
	}
	return fsops.IsOwner(urd, full)
}

// canWrite applies the owner/public write-bit rule, overridden to always
// allow when sess holds system privilege (fs_cmd_access's SYST override).
func (s *Server) canWrite(sess *session.Session, full string, fi os.FileInfo) bool {
	if sess.Priv == proto.PrivSyst {
		return true
	}
	if s.isOwner(sess, full) {
		return fi.Mode()&0200 != 0
	}
	return fi.Mode()&0002 != 0
}

func (s *Server) canCreateIn(sess *session.Session, dir string) bool {
	fi, err := os.Stat(dir)
	if err != nil {
		return false
	}
	return s.canWrite(sess, dir, fi)
}

// loginSession (re)opens URD/CSD/LIB against urd, the shape fs_new_client
// and *SDISC share: URD and CSD both start at the user root, LIB at the
// configured library directory.
func (s *Server) loginSession(sess *session.Session, urd string) {
	urdPath := filepath.Join(s.root, urd)
	libPath := filepath.Join(s.root, s.defaultLib)

	if uh, hd := sess.Handles.Alloc(handle.KindDir); hd != nil {
		hd.Path = urdPath
		sess.URD = uh
	}
	if ch, hd := sess.Handles.Alloc(handle.KindDir); hd != nil {
		hd.Path = urdPath
		sess.CSD = ch
	}
	if lh, hd := sess.Handles.Alloc(handle.KindDir); hd != nil {
		hd.Path = libPath
		sess.LIB = lh
	}
}
