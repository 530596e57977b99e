// Package fsops bridges the legacy owner/public access-bit model to Unix
// file modes, resolves ownership for the "no-access on create" rule, and
// reports disc-free space.
package fsops

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	perm "github.com/nabbar/golib/file/perm"
	"github.com/nabbar/golib/internal/proto"
)

// ModeToAccess derives the one-byte Acorn access value from a Unix
// FileMode. Group bits are folded into owner/public the same way the
// reference repurposes them.
func ModeToAccess(mode os.FileMode, locked bool) proto.Access {
	var a proto.Access

	p := perm.ParseFileMode(mode)
	m := os.FileMode(p)

	if m&0400 != 0 || m&0040 != 0 {
		a |= proto.AccessOwnerRead
	}
	if m&0200 != 0 || m&0020 != 0 {
		a |= proto.AccessOwnerWrite
	}
	if m&0004 != 0 || m&0040 != 0 {
		a |= proto.AccessPublicRead
	}
	if m&0002 != 0 || m&0020 != 0 {
		a |= proto.AccessPublicWrite
	}
	if locked {
		a |= proto.AccessLocked
	}
	if mode.IsDir() {
		a |= proto.AccessDirectory
	}

	return a
}

// AccessToMode derives a Unix FileMode from an Acorn access byte. Owner
// bits also set the matching group bit ("user group follows owner");
// directories never accept an access-bit change at the caller (enforced
// in the handler, not here).
func AccessToMode(a proto.Access) os.FileMode {
	var m os.FileMode

	if a&proto.AccessOwnerRead != 0 {
		m |= 0440
	}
	if a&proto.AccessOwnerWrite != 0 {
		m |= 0220
	}
	if a&proto.AccessPublicRead != 0 {
		m |= 0044
	}
	if a&proto.AccessPublicWrite != 0 {
		m |= 0022
	}

	return m
}

// IsLocked reports whether mode's execute bit is set, the historical
// repurposing of the Unix x-bit as the Acorn "locked" flag.
func IsLocked(mode os.FileMode) bool {
	return mode&0111 != 0
}

// SetLocked flips the execute bit to match locked, preserving every other
// mode bit.
func SetLocked(mode os.FileMode, locked bool) os.FileMode {
	if locked {
		return mode | 0111
	}
	return mode &^ 0111
}

// IsOwner reports whether target lies within urd (both already resolved,
// rooted Unix paths under the served tree).
//
// The reference re-checks ownership with a raw string-prefix comparison
// of the unresolved path; this repository instead cleans both paths and
// checks that target has no leading ".." relative to urd.
// filepath.EvalSymlinks is deliberately not used: name translation never
// escapes the served root, so no symlink can place target outside urd in
// the first place, and Clean is sufficient to normalize "." / ".."
// components introduced by translation.
func IsOwner(urd, target string) bool {
	urd = filepath.Clean(urd)
	target = filepath.Clean(target)

	rel, err := filepath.Rel(urd, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// DiscFree reports free and total space for the disc rooted at root, in
// 256-byte blocks, clamped to fit a 32-bit block count.
func DiscFree(root string) (free, total uint32, err error) {
	var st unix.Statfs_t
	if e := unix.Statfs(root, &st); e != nil {
		return 0, 0, e
	}

	const blockSize = 256
	toBlocks := func(units uint64, bsize int64) uint64 {
		return units * uint64(bsize) / blockSize
	}

	f := toBlocks(uint64(st.Bfree), int64(st.Bsize))
	t := toBlocks(uint64(st.Blocks), int64(st.Bsize))

	return clamp32(f), clamp32(t), nil
}

func clamp32(v uint64) uint32 {
	if v > 0xffffffff {
		return 0xffffffff
	}
	return uint32(v)
}

// Flock applies an advisory lock on f's descriptor: shared for read-only
// opens, exclusive otherwise. Returns protoerr.Open by way of the
// returned OS error when another process holds a conflicting lock.
func Flock(fd int, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	return unix.Flock(fd, how|unix.LOCK_NB)
}

func Unflock(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}
