// CLI interpreter (grounded on fs_cli.c): the *-command table, its
// abbreviation-matching rule, and the handler bodies that don't warrant a
// dedicated request function code (login, logoff, password change,
// directory navigation, ownership/access changes).
package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nabbar/golib/internal/fsops"
	"github.com/nabbar/golib/internal/handle"
	"github.com/nabbar/golib/internal/nametrans"
	"github.com/nabbar/golib/internal/meta"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/protoerr"
	"github.com/nabbar/golib/internal/session"
)

type cliCmd struct {
	name          string
	minLen        int
	needsSession  bool
	handler       func(s *Server, ctx context.Context, c *ctxReq, arg string)
}

var cliTable = []cliCmd{
	{"I AM", 1, false, (*Server).cmdIAm},
	{"LOGON", 2, false, (*Server).cmdIAm},
	{"BYE", 1, true, (*Server).cmdBye},
	{"LOGOFF", 3, true, (*Server).cmdBye},
	{"PASS", 1, true, (*Server).cmdPass},
	{"CAT", 1, true, (*Server).cmdCat},
	{"DIR", 1, true, (*Server).cmdDir},
	{"LIB", 1, true, (*Server).cmdLib},
	{"CDIR", 2, true, (*Server).cmdCDir},
	{"DELETE", 3, true, (*Server).cmdDelete},
	{"RENAME", 3, true, (*Server).cmdRename},
	{"ACCESS", 1, true, (*Server).cmdAccess},
	{"SDISC", 2, true, (*Server).cmdSDisc},
	{"PRIV", 2, true, (*Server).cmdPriv},
	{"INFO", 1, true, (*Server).cmdInfo},
	{"FSOPT", 2, true, (*Server).cmdFSOpt},
}

func (s *Server) cliDispatch(ctx context.Context, c *ctxReq) {
	line, _, ok := proto.CutCRString(c.req.Data)
	if !ok {
		line = strings.TrimRight(string(c.req.Data), "\x00")
	}
	line = strings.TrimLeft(line, " ")
	if line == "" {
		s.errorReply(c, protoerr.BadCmd)
		return
	}

	for _, cmd := range cliTable {
		if ok, rest := matchCommand(cmd.name, cmd.minLen, line); ok {
			if cmd.needsSession && c.session == nil {
				s.errorReply(c, protoerr.UserNotOn)
				return
			}
			cmd.handler(s, ctx, c, rest)
			return
		}
	}

	s.errorReply(c, protoerr.BadCmd)
}

// matchCommand implements fs_cli_match's abbreviation rule: the input
// matches name's full text followed by a delimiter, or an input prefix of
// at least minLen characters followed by '.'.
func matchCommand(name string, minLen int, input string) (bool, string) {
	n := 0
	for n < len(name) && n < len(input) {
		if upperByte(input[n]) != name[n] {
			break
		}
		n++
	}

	if n == len(name) {
		if n == len(input) {
			return true, ""
		}
		d := input[n]
		if strings.IndexByte(" .^&@$%", d) >= 0 {
			rest := input[n:]
			if d == '.' {
				rest = rest[1:]
			}
			return true, strings.TrimLeft(rest, " ")
		}
		return false, ""
	}

	if n >= minLen && n < len(input) && input[n] == '.' {
		return true, strings.TrimLeft(input[n+1:], " ")
	}

	return false, ""
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// nextArg is a non-mutating counterpart of fs_cli_getarg: it splits s on
// whitespace, honoring double-quoted substrings (with "" as an escaped
// quote), and returns the remaining unparsed tail.
func nextArg(s string) (arg, rest string) {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	s = s[i:]
	if s == "" {
		return "", ""
	}

	if s[0] == '"' {
		var b strings.Builder
		j := 1
		for j < len(s) {
			if s[j] == '"' {
				if j+1 < len(s) && s[j+1] == '"' {
					b.WriteByte('"')
					j += 2
					continue
				}
				j++
				break
			}
			b.WriteByte(s[j])
			j++
		}
		return b.String(), strings.TrimLeft(s[j:], " ")
	}

	j := 0
	for j < len(s) && s[j] != ' ' {
		j++
	}
	return s[:j], strings.TrimLeft(s[j:], " ")
}

func parsePriv(s string) (proto.Priv, bool) {
	switch strings.ToUpper(s) {
	case "S", "SYST", "SYSTEM":
		return proto.PrivSyst, true
	case "L", "LOCKED":
		return proto.PrivLimit, true
	case "N", "NONE", "U", "UNLOCKED":
		return proto.PrivFixed, true
	}
	return 0, false
}

func parseAccessString(s string) proto.Access {
	var a proto.Access
	for _, r := range s {
		switch r {
		case 'R':
			a |= proto.AccessOwnerRead
		case 'W':
			a |= proto.AccessOwnerWrite
		case 'r':
			a |= proto.AccessPublicRead
		case 'w':
			a |= proto.AccessPublicWrite
		case 'L', 'l':
			a |= proto.AccessLocked
		}
	}
	return a
}

func (s *Server) cmdIAm(ctx context.Context, c *ctxReq, arg string) {
	login, rest := nextArg(arg)
	pass, _ := nextArg(rest)
	if login == "" {
		s.errorReply(c, protoerr.BadCmd)
		return
	}

	urd, opt4, err := s.users.Validate(login, pass)
	if err != nil {
		s.errorReply(c, protoerr.WrongPw)
		return
	}

	sess := s.sessions.Create(c.from)
	sess.Login = login
	sess.Priv = s.users.GetPriv(login)
	sess.Opt4 = opt4
	s.loginSession(sess, urd)

	data := []byte{byte(sess.URD), byte(sess.CSD), byte(sess.LIB), byte(sess.Opt4)}
	c.session = sess
	s.reply(c, proto.CCLogon, data)
}

func (s *Server) cmdBye(ctx context.Context, c *ctxReq, arg string) {
	_ = s.sessions.Destroy(c.from)
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdPass(ctx context.Context, c *ctxReq, arg string) {
	oldpw, rest := nextArg(arg)
	newpw, _ := nextArg(rest)
	if err := s.users.Change(c.session.Login, oldpw, newpw); err != nil {
		s.errorReply(c, protoerr.WrongPw)
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdCat(ctx context.Context, c *ctxReq, arg string) {
	name, _ := nextArg(arg)
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

func (s *Server) cmdDir(ctx context.Context, c *ctxReq, arg string) {
	s.switchDir(c, arg, &c.session.CSD, proto.CCDir)
}

func (s *Server) cmdLib(ctx context.Context, c *ctxReq, arg string) {
	s.switchDir(c, arg, &c.session.LIB, proto.CCLib)
}

func (s *Server) switchDir(c *ctxReq, arg string, slot *int, cc proto.CommandCode) {
	name, _ := nextArg(arg)
	if name == "" {
		name = "$"
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

	h, hd := c.session.Handles.Alloc(handle.KindDir)
	if hd == nil {
		s.errorReply(c, protoerr.ManyOpen)
		return
	}
	hd.Path = full

	old := *slot
	*slot = h
	if old != 0 {
		_ = c.session.Handles.Release(old)
	}

	s.reply(c, cc, []byte{byte(h)})
}

func (s *Server) cmdCDir(ctx context.Context, c *ctxReq, arg string) {
	name, _ := nextArg(arg)
	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.BadName)
		return
	}
	full := filepath.Join(s.root, rel)
	if merr := os.Mkdir(full, 0755); merr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(merr)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdDelete(ctx context.Context, c *ctxReq, arg string) {
	name, _ := nextArg(arg)
	s.doDelete(c, name)
}

func (s *Server) cmdRename(ctx context.Context, c *ctxReq, arg string) {
	from, rest := nextArg(arg)
	to, _ := nextArg(rest)

	relFrom, err := nametrans.Translate(s.bases(c.session), from)
	if err != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	relTo, err := nametrans.Translate(s.bases(c.session), to)
	if err != nil {
		s.errorReply(c, protoerr.BadName)
		return
	}

	fullFrom := filepath.Join(s.root, relFrom)
	fullTo := filepath.Join(s.root, relTo)

	fi, serr := os.Lstat(fullFrom)
	if serr != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	if !s.canWrite(c.session, fullFrom, fi) {
		s.errorReply(c, protoerr.NoAccess)
		return
	}

	if rerr := os.Rename(fullFrom, fullTo); rerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(rerr)))
		return
	}

	dirFrom, leafFrom := filepath.Split(fullFrom)
	dirTo, leafTo := filepath.Split(fullTo)
	_ = meta.Rename(dirFrom, leafFrom, dirTo, leafTo)

	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdAccess(ctx context.Context, c *ctxReq, arg string) {
	name, rest := nextArg(arg)
	accStr, _ := nextArg(rest)

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

	owner := c.session.Priv == proto.PrivSyst || s.isOwner(c.session, full)
	if !owner {
		s.errorReply(c, protoerr.NoAccess)
		return
	}

	if fi.IsDir() {
		s.reply(c, proto.CCDone, nil)
		return
	}

	acc := parseAccessString(accStr)
	mode := fsops.SetLocked(fsops.AccessToMode(acc), acc&proto.AccessLocked != 0)
	if cerr := os.Chmod(full, mode); cerr != nil {
		s.errorReply(c, protoerr.WireCode(protoerr.FromOS(cerr)))
		return
	}
	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdSDisc(ctx context.Context, c *ctxReq, arg string) {
	urd, err := s.users.URD(c.session.Login)
	if err != nil {
		s.errorReply(c, protoerr.BadUser)
		return
	}
	_ = c.session.Handles.CloseAll()
	c.session.Handles = handle.New(c.session.SafeHandles)
	s.loginSession(c.session, urd)
	s.reply(c, proto.CCSDisc, []byte{byte(c.session.URD), byte(c.session.CSD), byte(c.session.LIB)})
}

// cmdPriv always reports NoPriv on any failure — wrong caller privilege,
// unknown target user, or an unparsable privilege argument all collapse to
// the same wire code, matching fs_cmd_priv's uniform failure report.
func (s *Server) cmdPriv(ctx context.Context, c *ctxReq, arg string) {
	target, rest := nextArg(arg)
	privStr, _ := nextArg(rest)

	if c.session.Priv != proto.PrivSyst {
		s.errorReply(c, protoerr.NoPriv)
		return
	}

	newPriv, ok := parsePriv(privStr)
	if !ok {
		s.errorReply(c, protoerr.NoPriv)
		return
	}

	if err := s.users.SetPriv(c.session.Priv, target, newPriv); err != nil {
		s.errorReply(c, protoerr.NoPriv)
		return
	}

	s.reply(c, proto.CCDone, nil)
}

func (s *Server) cmdInfo(ctx context.Context, c *ctxReq, arg string) {
	name, _ := nextArg(arg)
	rel, err := nametrans.Translate(s.bases(c.session), name)
	if err != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	full := filepath.Join(s.root, rel)
	leaf := filepath.Base(full)

	line, ierr := s.longInfoLine(c.session, full, leaf)
	if ierr != nil {
		s.errorReply(c, protoerr.NotFound)
		return
	}
	s.reply(c, proto.CCInfo, proto.AppendCRString(nil, line))
}

func (s *Server) cmdFSOpt(ctx context.Context, c *ctxReq, arg string) {
	opt, val := nextArg(arg)
	valStr, _ := nextArg(val)

	switch strings.ToUpper(opt) {
	case "INFO", "1":
		if valStr == "1" || strings.EqualFold(valStr, "SJ") {
			c.session.InfoFormat = session.InfoFormatSJ
		} else {
			c.session.InfoFormat = session.InfoFormatRISCOS
		}
	case "SAFE", "2":
		c.session.SafeHandles = valStr != "0"
		c.session.Handles.SetSafeMode(c.session.SafeHandles)
	}

	s.reply(c, proto.CCDone, nil)
}
