// Non-CLI request handlers: one function per request function code,
// grounded on fs_misc.c, fs_examine.c and fileserver.c's fs_dispatch table.
// dispatch itself mirrors fs_dispatch's bounds check: an out-of-range or
// unmapped function code always falls through to a BadCmd error reply,
// never a panic.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nabbar/golib/internal/fsops"
	"github.com/nabbar/golib/internal/handle"
	"github.com/nabbar/golib/internal/meta"
	"github.com/nabbar/golib/internal/nametrans"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/protoerr"
	"github.com/nabbar/golib/internal/session"
)

func (s *Server) dispatch(ctx context.Context, c *ctxReq) {
	if c.req.Function == proto.FuncCLI {
		s.cliDispatch(ctx, c)
		return
	}

	if c.session == nil {
		s.errorReply(c, protoerr.UserNotOn)
		return
	}

	switch c.req.Function {
	case proto.FuncSave:
		s.hSave(ctx, c)
	case proto.FuncLoad:
		s.hLoad(ctx, c)
	case proto.FuncExamine:
		s.hExamine(ctx, c)
	case proto.FuncCatHeader:
		s.hCatHeader(ctx, c)
	case proto.FuncOpen:
		s.hOpen(ctx, c)
	case proto.FuncClose:
		s.hClose(ctx, c)
	case proto.FuncGetByte:
		s.hGetByte(ctx, c)
	case proto.FuncPutByte:
		s.hPutByte(ctx, c)
	case proto.FuncGetBytes:
		s.hGetBytes(ctx, c)
	case proto.FuncPutBytes:
		s.hPutBytes(ctx, c)
	case proto.FuncGetArgs:
		s.hGetArgs(ctx, c)
	case proto.FuncSetArgs:
		s.hSetArgs(ctx, c)
	case proto.FuncGetDiscs:
		s.hGetDiscs(ctx, c)
	case proto.FuncGetUsersOn:
		s.hGetUsersOn(ctx, c)
	case proto.FuncGetTime:
		s.hGetTime(ctx, c)
	case proto.FuncGetEOF:
		s.hGetEOF(ctx, c)
	case proto.FuncGetInfo:
		s.hGetInfo(ctx, c)
	case proto.FuncSetInfo:
		s.hSetInfo(ctx, c)
	case proto.FuncDelete:
		s.hDelete(ctx, c)
	case proto.FuncGetUEnv:
		s.hGetUEnv(ctx, c)
	case proto.FuncSetOpt4:
		s.hSetOpt4(ctx, c)
	case proto.FuncLogoff:
		s.hLogoff(ctx, c)
	case proto.FuncGetUser:
		s.hGetUser(ctx, c)
	case proto.FuncGetVersion:
		s.hGetVersion(ctx, c)
	case proto.FuncGetDiscFree:
		s.hGetDiscFree(ctx, c)
	case proto.FuncCDirN:
		s.hCDirN(ctx, c)
	case proto.FuncCreate:
		s.hCreate(ctx, c)
	case proto.FuncGetUserFree:
		s.hGetUserFree(ctx, c)
	default:
		s.errorReply(c, protoerr.BadCmd)
	}
}

func (s *Server) doDelete(c *ctxReq, name string) {
	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	full := filepath.Join(s.root, rel)

	fi, serr := os.Lstat(full)
	if serr != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	if fi.IsDir() {
		if ents, _ := os.ReadDir(full); len(ents) > 0 {
			s.errorReply(c, protoerr.DirNotEmpty)
			return
		}
	}
	if fsops.IsLocked(fi.Mode()) {
		s.errorReply(c, protoerr.Locked)
		return
	}
	if !s.canWrite(c.session, full, fi) {
		s.errorReply(c, protoerr.NoAccess)
		return
	}

	dir, leaf := filepath.Split(full)
	if !fi.IsDir() {
		_ = meta.Remove(dir, leaf)
	}
	if rerr := os.Remove(full); rerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(rerr)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func accessToString(a proto.Access) string {
	var b strings.Builder
	if a&proto.AccessOwnerRead != 0 {
		b.WriteByte('R')
	}
	if a&proto.AccessOwnerWrite != 0 {
		b.WriteByte('W')
	}
	b.WriteByte('/')
	if a&proto.AccessPublicRead != 0 {
		b.WriteByte('r')
	}
	if a&proto.AccessPublicWrite != 0 {
		b.WriteByte('w')
	}
	if a&proto.AccessLocked != 0 {
		b.WriteByte('L')
	}
	return b.String()
}

// longInfoLine renders the human text line *INFO/*CAT/long-Examine use
// (fs_long_info). In SJ info-format with per-session subentry counting
// enabled, directories also report their non-hidden child count.
func (s *Server) longInfoLine(sess *session.Session, full, leaf string) (string, error) {
	fi, err := os.Lstat(full)
	if err != nil {
		return "", err
	}

	acc := fsops.ModeToAccess(fi.Mode(), fsops.IsLocked(fi.Mode()))
	accessStr := accessToString(acc)

	if fi.IsDir() {
		sub := ""
		if sess.InfoFormat == session.InfoFormatSJ && sess.CountSJSubentries {
			if ents, e := os.ReadDir(full); e == nil {
				n := 0
				for _, en := range ents {
					if !strings.HasPrefix(en.Name(), ".") {
						n++
					}
				}
				sub = " " + itoa(n)
			}
		}
		return pad(leaf, 10) + " " + accessStr + sub, nil
	}

	dir := filepath.Dir(full)
	typ := s.types.Guess(leaf, fi.Mode())
	m, merr := meta.Read(dir, leaf, uint8(typ))
	if merr != nil {
		m.Load, m.Exec = 0, 0
	}

	return pad(leaf, 10) + " " + hex8(m.Load) + " " + hex8(m.Exec) + " " + hex6(uint32(fi.Size())) + " " + accessStr, nil
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func itoa(n int) string { return strconv.Itoa(n) }

func hex8(v uint32) string { return fmt.Sprintf("%08X", v) }
func hex6(v uint32) string { return fmt.Sprintf("%06X", v) }

func (s *Server) hCatHeader(ctx context.Context, c *ctxReq) {
	name, _, ok := proto.CutCRString(c.req.Data)
	if !ok {
		name = ""
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
	if !fi.IsDir() {
		s.errorReply(c, protoerr.NotDir)
		return
	}

	access := proto.DirAccessPublic
	if c.session.Priv == proto.PrivSyst || s.isOwner(c.session, full) {
		access = proto.DirAccessOwner
	}
	data := proto.PadName(filepath.Base(full), 10)
	data = append(data, byte(access))
	s.reply(c, proto.CCCat, data)
}

// hExamine serves the four Examine sub-formats against a cached directory
// listing keyed to the handle's path (fs_examine.c's dir_cache), refreshed
// whenever the path changes or the client asks for an earlier start index.
func (s *Server) hExamine(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 4 {
		s.errorReply(c, protoerr.BadExamine)
		return
	}
	h := int(d[0])
	sub := d[1]
	start := int(d[2])
	count := int(d[3])
	pattern, _, _ := proto.CutCRString(d[4:])

	hd := c.session.Handles.Get(h)
	if hd == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}

	if hd.DirPath != hd.Path || hd.DirEntries == nil || start < hd.DirStart {
		ents, rerr := os.ReadDir(hd.Path)
		if rerr != nil {
			s.errorReply(c, protoerr.WireCode(protoerr.FromOS(rerr)))
			return
		}
		names := make([]string, 0, len(ents))
		for _, e := range ents {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if pattern != "" && !strings.Contains(strings.ToLower(e.Name()), strings.ToLower(pattern)) {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		hd.DirPath = hd.Path
		hd.DirEntries = names
		hd.DirStart = 0
	}

	end := start + count
	if start > len(hd.DirEntries) {
		start = len(hd.DirEntries)
	}
	if end > len(hd.DirEntries) {
		end = len(hd.DirEntries)
	}
	batch := hd.DirEntries[start:end]
	more := byte(0)
	if end < len(hd.DirEntries) {
		more = 1
	}

	data := []byte{byte(len(batch)), more}
	for _, name := range batch {
		full := filepath.Join(hd.Path, name)
		switch sub {
		case proto.ExamineName:
			data = append(data, proto.PadName(name, 10)...)
		case proto.ExamineShortText:
			fi, lerr := os.Lstat(full)
			if lerr != nil {
				continue
			}
			data = append(data, proto.PadName(name, 10)...)
			data = append(data, byte(fsops.ModeToAccess(fi.Mode(), fsops.IsLocked(fi.Mode()))))
		case proto.ExamineLongText:
			line, lerr := s.longInfoLine(c.session, full, name)
			if lerr == nil {
				data = proto.AppendCRString(data, line)
			}
		default:
			fi, lerr := os.Lstat(full)
			if lerr != nil {
				continue
			}
			typ := s.types.Guess(name, fi.Mode())
			m, _ := meta.Read(hd.Path, name, uint8(typ))
			data = append(data, proto.PadName(name, 10)...)
			data = proto.AppendUint32LE(data, m.Load)
			data = proto.AppendUint32LE(data, m.Exec)
			data = proto.AppendUint24LE(data, uint32(fi.Size()))
			data = append(data, byte(fsops.ModeToAccess(fi.Mode(), fsops.IsLocked(fi.Mode()))))
		}
	}

	s.reply(c, proto.CCDone, data)
}

func (s *Server) hOpen(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 2 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	mustExist := d[0] != 0
	readOnly := d[1] != 0
	name, _, ok := proto.CutCRString(d[2:])
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
	exists := serr == nil
	if exists && fi.IsDir() {
		s.errorReply(c, protoerr.IsDir)
		return
	}
	if !exists {
		if mustExist || readOnly {
			s.errorReply(c, protoerr.NotFound)
			return
		}
		if !s.canCreateIn(c.session, filepath.Dir(full)) {
			s.errorReply(c, protoerr.NoAccess)
			return
		}
	} else if !readOnly && !s.canWrite(c.session, full, fi) {
		s.errorReply(c, protoerr.Locked)
		return
	}

	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR | os.O_CREATE
	}
	f, oerr := os.OpenFile(full, flags, 0644)
	if oerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(oerr)))
		return
	}
	if ferr := fsops.Flock(int(f.Fd()), !readOnly); ferr != nil {
		_ = f.Close()
		s.errorReply(c, protoerr.Open)
		return
	}

	h, hd := c.session.Handles.Alloc(handle.KindFile)
	if hd == nil {
		_ = f.Close()
		s.errorReply(c, protoerr.ManyOpen)
		return
	}
	hd.Path = full
	hd.File = f
	hd.ReadOnly = readOnly
	hd.CanRead = true
	hd.CanWrite = !readOnly
	hd.IsOwner = s.isOwner(c.session, full)

	s.reply(c, proto.CCDone, []byte{byte(h)})
}

func (s *Server) hClose(ctx context.Context, c *ctxReq) {
	if len(c.req.Data) < 1 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	h := int(c.req.Data[0])
	if h == 0 {
		_ = c.session.Handles.CloseAll()
		s.reply(c, proto.CCDone, nil)
		return
	}
	if c.session.Handles.Check(h) == 0 {
		s.errorReply(c, protoerr.Channel)
		return
	}
	if err := c.session.Handles.Release(h); err != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(err)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hGetByte(ctx context.Context, c *ctxReq) {
	if len(c.req.Data) < 1 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	hd := c.session.Handles.Get(int(c.req.Data[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}

	var b [1]byte
	n, err := hd.File.Read(b[:])
	if n == 0 || err != nil {
		s.reply(c, proto.CCDone, []byte{0, proto.FlagEOF})
		return
	}
	s.reply(c, proto.CCDone, []byte{b[0], 0})
}

func (s *Server) hPutByte(ctx context.Context, c *ctxReq) {
	if len(c.req.Data) < 2 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	hd := c.session.Handles.Get(int(c.req.Data[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}
	if hd.ReadOnly {
		s.errorReply(c, protoerr.Locked)
		return
	}
	if _, err := hd.File.Write(c.req.Data[1:2]); err != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(err)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hGetArgs(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 2 {
		s.errorReply(c, protoerr.BadArgs)
		return
	}
	hd := c.session.Handles.Get(int(d[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}

	var v uint32
	switch d[1] {
	case proto.ArgPtr:
		pos, _ := hd.File.Seek(0, 1)
		v = uint32(pos)
	case proto.ArgExt:
		if fi, ferr := hd.File.Stat(); ferr == nil {
			v = uint32(fi.Size())
		}
	case proto.ArgSize:
		v = uint32(proto.MaxBlock)
	default:
		s.errorReply(c, protoerr.BadArgs)
		return
	}
	s.reply(c, proto.CCDone, proto.AppendUint32LE(nil, v))
}

func (s *Server) hSetArgs(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 6 {
		s.errorReply(c, protoerr.BadArgs)
		return
	}
	hd := c.session.Handles.Get(int(d[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}
	val := proto.Uint32LE(d[2:6])

	switch d[1] {
	case proto.ArgPtr:
		if _, serr := hd.File.Seek(int64(val), 0); serr != nil {
			s.errorReply(c, protoerr.OutsideFile)
			return
		}
	case proto.ArgExt:
		if terr := hd.File.Truncate(int64(val)); terr != nil {
			s.errorReply(c, protoerr.WireCode(protoerr.FromOS(terr)))
			return
		}
	default:
		s.errorReply(c, protoerr.BadArgs)
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hGetDiscs(ctx context.Context, c *ctxReq) {
	data := append([]byte{1}, proto.PadName(s.discName, 10)...)
	s.reply(c, proto.CCDiscs, data)
}

func (s *Server) hGetUsersOn(ctx context.Context, c *ctxReq) {
	all := s.sessions.All()
	data := []byte{byte(len(all))}
	for _, sess := range all {
		data = append(data, proto.PadName(sess.Login, 10)...)
	}
	s.reply(c, proto.CCDone, data)
}

func (s *Server) hGetTime(ctx context.Context, c *ctxReq) {
	now := time.Now()
	dd := proto.EncodeDate(now)
	data := []byte{dd[0], dd[1], byte(now.Hour()), byte(now.Minute()), byte(now.Second())}
	s.reply(c, proto.CCDone, data)
}

func (s *Server) hGetEOF(ctx context.Context, c *ctxReq) {
	if len(c.req.Data) < 1 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	hd := c.session.Handles.Get(int(c.req.Data[0]))
	if hd == nil || hd.File == nil {
		s.errorReply(c, protoerr.Channel)
		return
	}
	pos, _ := hd.File.Seek(0, 1)
	eof := byte(0)
	if fi, ferr := hd.File.Stat(); ferr == nil && pos >= fi.Size() {
		eof = 0xff
	}
	s.reply(c, proto.CCDone, []byte{eof})
}

func (s *Server) hGetInfo(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 1 {
		s.errorReply(c, protoerr.BadInfo)
		return
	}
	sel := d[0]
	name, _, ok := proto.CutCRString(d[1:])
	if !ok {
		s.errorReply(c, protoerr.BadInfo)
		return
	}

	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	full := filepath.Join(s.root, rel)
	fi, serr := os.Lstat(full)
	if serr != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}

	switch sel {
	case proto.InfoAll, proto.InfoMeta:
		leaf := filepath.Base(full)
		typ := s.types.Guess(leaf, fi.Mode())
		m, _ := meta.Read(filepath.Dir(full), leaf, uint8(typ))
		data := proto.AppendUint32LE(nil, m.Load)
		data = proto.AppendUint32LE(data, m.Exec)
		data = proto.AppendUint24LE(data, uint32(fi.Size()))
		data = append(data, byte(fsops.ModeToAccess(fi.Mode(), fsops.IsLocked(fi.Mode()))))
		if fi.IsDir() {
			data = append(data, byte(proto.TypeDir))
		} else {
			data = append(data, byte(proto.TypeFile))
		}
		s.reply(c, proto.CCDone, data)
	case proto.InfoSize:
		s.reply(c, proto.CCDone, proto.AppendUint24LE(nil, uint32(fi.Size())))
	case proto.InfoAccess:
		s.reply(c, proto.CCDone, []byte{byte(fsops.ModeToAccess(fi.Mode(), fsops.IsLocked(fi.Mode())))})
	case proto.InfoCTime:
		dd := proto.EncodeDate(fi.ModTime())
		s.reply(c, proto.CCDone, []byte{dd[0], dd[1]})
	case proto.InfoDir:
		if !fi.IsDir() {
			s.errorReply(c, protoerr.NotDir)
			return
		}
		access := proto.DirAccessPublic
		if c.session.Priv == proto.PrivSyst || s.isOwner(c.session, full) {
			access = proto.DirAccessOwner
		}
		s.reply(c, proto.CCDone, []byte{byte(access)})
	case proto.InfoUID:
		s.reply(c, proto.CCDone, proto.AppendUint32LE(nil, 0))
	default:
		s.errorReply(c, protoerr.BadInfo)
	}
}

func (s *Server) hSetInfo(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 1 {
		s.errorReply(c, protoerr.BadInfo)
		return
	}
	sel := d[0]
	rest := d[1:]

	switch sel {
	case proto.SetInfoAll, proto.SetInfoLoad, proto.SetInfoExec:
		if len(rest) < 9 {
			s.errorReply(c, protoerr.BadInfo)
			return
		}
		load := proto.Uint32LE(rest[0:4])
		exec := proto.Uint32LE(rest[4:8])
		name, _, ok := proto.CutCRString(rest[8:])
		if !ok {
			s.errorReply(c, protoerr.BadInfo)
			return
		}
		rel, err := nametrans.Translate(s.bases(c.session), name)
		if err != nil {
			s.errorReply(c, protoerr.NotFound)
			return
		}
		full := filepath.Join(s.root, rel)
		fi, serr := os.Lstat(full)
		if serr != nil {
			s.errorReply(c, protoerr.NotFound)
			return
		}
		if !s.canWrite(c.session, full, fi) {
			s.errorReply(c, protoerr.NoAccess)
			return
		}
		dir, leaf := filepath.Split(full)
		m, _ := meta.Read(dir, leaf, 0)
		if sel == proto.SetInfoAll || sel == proto.SetInfoLoad {
			m.Load = load
		}
		if sel == proto.SetInfoAll || sel == proto.SetInfoExec {
			m.Exec = exec
		}
		if werr := meta.Write(dir, leaf, m); werr != nil {
			s.errorReply(c, protoerr.WireCode(protoerr.FromOS(werr)))
			return
		}
		s.reply(c, proto.CCDone, nil)
	case proto.SetInfoAccess:
		if len(rest) < 1 {
			s.errorReply(c, protoerr.BadInfo)
			return
		}
		acc := proto.Access(rest[0])
		name, _, ok := proto.CutCRString(rest[1:])
		if !ok {
			s.errorReply(c, protoerr.BadInfo)
			return
		}
		rel, err := nametrans.Translate(s.bases(c.session), name)
		if err != nil {
			s.errorReply(c, protoerr.NotFound)
			return
		}
		full := filepath.Join(s.root, rel)
		fi, serr := os.Lstat(full)
		if serr != nil {
			s.errorReply(c, protoerr.NotFound)
			return
		}
		if !s.canWrite(c.session, full, fi) {
			s.errorReply(c, protoerr.NoAccess)
			return
		}
		if fi.IsDir() {
			s.reply(c, proto.CCDone, nil)
			return
		}
		mode := fsops.SetLocked(fsops.AccessToMode(acc), acc&proto.AccessLocked != 0)
		if cerr := os.Chmod(full, mode); cerr != nil {
			s.errorReply(c, protoerr.WireCode(protoerr.FromOS(cerr)))
			return
		}
		s.reply(c, proto.CCDone, nil)
	default:
		s.errorReply(c, protoerr.BadInfo)
	}
}

func (s *Server) hDelete(ctx context.Context, c *ctxReq) {
	name, _, ok := proto.CutCRString(c.req.Data)
	if !ok {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	s.doDelete(c, name)
}

func (s *Server) hGetUEnv(ctx context.Context, c *ctxReq) {
	data := []byte{byte(c.session.CSD), byte(c.session.LIB)}
	data = append(data, proto.PadName(s.discName, 10)...)
	data = append(data, byte(c.session.Priv))
	s.reply(c, proto.CCDone, data)
}

func (s *Server) hSetOpt4(ctx context.Context, c *ctxReq) {
	if len(c.req.Data) < 1 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	val := int(c.req.Data[0])
	if err := s.users.SetOpt4(c.session.Login, val); err != nil {
		s.errorReply(c, protoerr.NoPriv)
		return
	}
	c.session.Opt4 = val
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hLogoff(ctx context.Context, c *ctxReq) {
	_ = s.sessions.Destroy(c.from)
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hGetUser(ctx context.Context, c *ctxReq) {
	name, _, ok := proto.CutCRString(c.req.Data)
	if !ok || name == "" {
		name = c.session.Login
	}
	priv := s.users.GetPriv(name)
	data := proto.PadName(name, 10)
	data = append(data, byte(priv))
	s.reply(c, proto.CCDone, data)
}

func (s *Server) hGetVersion(ctx context.Context, c *ctxReq) {
	s.reply(c, proto.CCDone, proto.AppendCRString(nil, "AUND 1.00"))
}

func (s *Server) hGetDiscFree(ctx context.Context, c *ctxReq) {
	free, total, err := fsops.DiscFree(s.root)
	if err != nil {
		s.errorReply(c, protoerr.DiscErr)
		return
	}
	data := proto.AppendUint32LE(nil, free)
	data = proto.AppendUint32LE(data, total)
	s.reply(c, proto.CCDone, data)
}

func (s *Server) hCDirN(ctx context.Context, c *ctxReq) {
	name, _, ok := proto.CutCRString(c.req.Data)
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
	if merr := os.MkdirAll(full, 0755); merr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(merr)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) hCreate(ctx context.Context, c *ctxReq) {
	d := c.req.Data
	if len(d) < 8 {
		s.errorReply(c, protoerr.BadCmd)
		return
	}
	size := int64(proto.Uint24LE(d[0:3]))
	name, _, ok := proto.CutCRString(d[7:])
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
	if size > 0 {
		if terr := f.Truncate(size); terr != nil {
			_ = f.Close()
			s.errorReply(c, protoerr.WireCode(protoerr.FromOS(terr)))
			return
		}
	}

	h, hd := c.session.Handles.Alloc(handle.KindFile)
	if hd == nil {
		_ = f.Close()
		s.errorReply(c, protoerr.ManyOpen)
		return
	}
	hd.Path = full
	hd.File = f
	hd.DidCreate = true
	hd.CanRead, hd.CanWrite = true, true

	s.reply(c, proto.CCDone, []byte{byte(h)})
}

func (s *Server) hGetUserFree(ctx context.Context, c *ctxReq) {
	_, total, err := fsops.DiscFree(s.root)
	if err != nil {
		s.errorReply(c, protoerr.DiscErr)
		return
	}
	s.reply(c, proto.CCDone, proto.AppendUint32LE(nil, total))
}
