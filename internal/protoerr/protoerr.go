// Package protoerr registers the file-service protocol's error taxonomy on
// top of github.com/nabbar/golib/errors, and maps host errno/os errors onto
// protocol error codes the way the reference's fs_error.c / errnotab does.
package protoerr

import (
	"errors"
	"os"
	"syscall"

	liberr "github.com/nabbar/golib/errors"
)

// Code is the wire-level one-byte protocol return code. It is distinct from
// liberr.CodeError (which can exceed a byte) so handlers can map cleanly
// onto the single return-code byte of a reply frame.
type Code uint8

const (
	BadExamine Code = 0x4f

	BadInfo  Code = 0x8e
	BadArgs  Code = 0x8f
	NoMem    Code = 0x90
	UserNotOn Code = 0xae

	RenXDev     Code = 0xb0
	UserExist   Code = 0xb1
	PwfFull     Code = 0xb2
	DirFull     Code = 0xb3
	DirNotEmpty Code = 0xb4
	IsDir       Code = 0xb5
	MapDiscErr  Code = 0xb6
	OutsideFile Code = 0xb7
	ManyUsers   Code = 0xb8
	BadPw       Code = 0xb9
	NoPriv      Code = 0xba
	WrongPw     Code = 0xbb
	BadUser     Code = 0xbc
	NoAccess    Code = 0xbd
	NotDir      Code = 0xbe
	WhoAreYou   Code = 0xbf

	ManyOpen Code = 0xc0
	RDOnly   Code = 0xc1
	Open     Code = 0xc2
	Locked   Code = 0xc3
	DiscFull Code = 0xc6
	DiscErr  Code = 0xc7
	BadDisc  Code = 0xc8
	DiscProt Code = 0xc9
	BadName  Code = 0xcc
	BadAccess Code = 0xcf

	NotFound Code = 0xd6
	Channel  Code = 0xde
	EOFCode  Code = 0xdf

	BadStr Code = 0xfd
	BadCmd Code = 0xfe

	Unmapped Code = 0xff
)

var messages = map[Code]string{
	BadExamine:  "Bad examine",
	BadInfo:     "Bad info",
	BadArgs:     "Bad args",
	NoMem:       "No memory",
	UserNotOn:   "Who are you?",
	RenXDev:     "Rename across discs",
	UserExist:   "User already exists",
	PwfFull:     "Password file full",
	DirFull:     "Directory full",
	DirNotEmpty: "Directory not empty",
	IsDir:       "Is a directory",
	MapDiscErr:  "Disc map error",
	OutsideFile: "Outside file",
	ManyUsers:   "Too many users",
	BadPw:       "Bad password",
	NoPriv:      "Insufficient privilege",
	WrongPw:     "Wrong password",
	BadUser:     "Bad user",
	NoAccess:    "Access denied",
	NotDir:      "Not a directory",
	WhoAreYou:   "Who are you?",
	ManyOpen:    "Too many open files",
	RDOnly:      "Read only",
	Open:        "Already open",
	Locked:      "Locked",
	DiscFull:    "Disc full",
	DiscErr:     "Disc error",
	BadDisc:     "Bad disc",
	DiscProt:    "Disc protected",
	BadName:     "Bad filename",
	BadAccess:   "Bad access",
	NotFound:    "Not found",
	Channel:     "Channel",
	EOFCode:     "EOF",
	BadStr:      "Bad string",
	BadCmd:      "Bad command",
	Unmapped:    "Error",
}

// baseCode is the lowest liberr.CodeError this package registers at;
// protocol codes are offset from it so they never collide with other
// packages' registrations in the shared errors registry.
const baseCode liberr.CodeError = 40000

func toLibCode(c Code) liberr.CodeError {
	return baseCode + liberr.CodeError(c)
}

func init() {
	liberr.RegisterIdFctMessage(baseCode, func(code liberr.CodeError) string {
		c := Code(code - baseCode)
		if m, ok := messages[c]; ok {
			return m
		}
		return liberr.NullMessage
	})
}

// New builds a protocol error carrying both the numeric wire code and its
// human, CR-terminated-ready message.
func New(code Code, parent ...error) liberr.Error {
	return liberr.New(uint16(toLibCode(code)), messages[code], parent...)
}

// Newf is New with a formatted message appended to the registered one.
func Newf(code Code, format string, args ...any) liberr.Error {
	e := liberr.New(uint16(toLibCode(code)), messages[code])
	if format != "" {
		e.Add(liberr.Newf(uint16(toLibCode(code)), format, args...))
	}
	return e
}

// Message returns the human-readable text for a wire code, for embedding in
// an error reply's data field.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "Internal server error"
}

// WireCode extracts the one-byte protocol return code from a protocol
// error, or Unmapped if e did not originate from this package.
func WireCode(e error) Code {
	if e == nil {
		return 0
	}

	var le liberr.Error
	if errors.As(e, &le) {
		for _, c := range le.GetParentCode() {
			if c >= baseCode && c <= baseCode+0xff {
				return Code(c - baseCode)
			}
		}
	}

	return Unmapped
}

// FromOS maps a host filesystem error onto a protocol error, the Go
// counterpart of the reference's fs_error.c errnotab.
func FromOS(err error) liberr.Error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return New(NotFound, err)
	case errors.Is(err, os.ErrPermission):
		return New(NoAccess, err)
	case errors.Is(err, os.ErrExist):
		return New(UserExist, err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return New(NotFound, err)
		case syscall.EACCES, syscall.EPERM:
			return New(NoAccess, err)
		case syscall.ENOTDIR:
			return New(NotDir, err)
		case syscall.EISDIR:
			return New(IsDir, err)
		case syscall.ENOSPC:
			return New(DiscFull, err)
		case syscall.EEXIST:
			return New(UserExist, err)
		case syscall.ENOTEMPTY:
			return New(DirNotEmpty, err)
		case syscall.EXDEV:
			return New(RenXDev, err)
		case syscall.EROFS:
			return New(RDOnly, err)
		}
	}

	return liberr.New(uint16(toLibCode(Unmapped)), err.Error(), err)
}
