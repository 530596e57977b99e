// Package meta implements the sidecar metadata store: per-file
// load/execute addresses kept as the target of a symlink under
// <dir>/.Acorn/<leaf>, synthesized when absent.
package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const sidecarDir = ".Acorn"

// Meta is a file's load/execute address pair.
type Meta struct {
	Load uint32
	Exec uint32
}

func sidecarPath(dir, leaf string) string {
	return filepath.Join(dir, sidecarDir, leaf)
}

// Read loads the sidecar for dir/leaf. If absent, it synthesizes defaults
// from leaf's mtime and guessedType:
// load = 0xfff00000 | (type << 8) | (high byte of centisecond timestamp),
// exec = low 32 bits of the centisecond timestamp.
func Read(dir, leaf string, guessedType uint8) (Meta, error) {
	target, err := os.Readlink(sidecarPath(dir, leaf))
	if err == nil {
		if m, ok := decode(target); ok {
			return m, nil
		}
	}

	fi, serr := os.Lstat(filepath.Join(dir, leaf))
	if serr != nil {
		return Meta{}, serr
	}

	cs := centiseconds(fi.ModTime())
	load := uint32(0xfff00000) | uint32(guessedType)<<8 | uint32((cs>>32)&0xff)
	exec := uint32(cs & 0xffffffff)

	return Meta{Load: load, Exec: exec}, nil
}

// Write stores meta for dir/leaf as a symlink, creating .Acorn on demand.
// Always writes the short 17-byte encoding: both forms must be read, but
// only the short form is ever written.
func Write(dir, leaf string, m Meta) error {
	sd := filepath.Join(dir, sidecarDir)
	if err := os.MkdirAll(sd, 0755); err != nil {
		return err
	}

	target := shortEncode(m)
	link := sidecarPath(dir, leaf)

	_ = os.Remove(link)
	if err := os.Symlink(target, link); err != nil {
		return err
	}

	return nil
}

// Remove deletes dir/leaf's sidecar entry, and removes .Acorn itself if it
// is now empty.
func Remove(dir, leaf string) error {
	link := sidecarPath(dir, leaf)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return err
	}

	sd := filepath.Join(dir, sidecarDir)
	entries, err := os.ReadDir(sd)
	if err != nil {
		return nil
	}
	if len(entries) == 0 {
		_ = os.Remove(sd)
	}
	return nil
}

// Rename moves leaf's sidecar entry from srcDir to dstDir under the (new)
// leaf name dstLeaf.
func Rename(srcDir, srcLeaf, dstDir, dstLeaf string) error {
	m, err := readRaw(srcDir, srcLeaf)
	if err != nil {
		// No sidecar existed; nothing to move.
		return nil
	}
	_ = Remove(srcDir, srcLeaf)
	return Write(dstDir, dstLeaf, m)
}

func readRaw(dir, leaf string) (Meta, error) {
	target, err := os.Readlink(sidecarPath(dir, leaf))
	if err != nil {
		return Meta{}, err
	}
	m, ok := decode(target)
	if !ok {
		return Meta{}, fmt.Errorf("meta: malformed sidecar %q", target)
	}
	return m, nil
}

// shortEncode renders the 17-byte "LLLLLLLL EEEEEEEE" form.
func shortEncode(m Meta) string {
	return fmt.Sprintf("%08x %08x", m.Load, m.Exec)
}

// decode accepts both legacy encodings: the 17-byte short form and the
// 23-byte space-separated byte-hex form.
func decode(target string) (Meta, bool) {
	if len(target) == 17 && target[8] == ' ' {
		var load, exec uint32
		if _, err := fmt.Sscanf(target, "%08x %08x", &load, &exec); err == nil {
			return Meta{Load: load, Exec: exec}, true
		}
	}

	if len(target) == 23 {
		var b [8]byte
		n, err := fmt.Sscanf(target, "%02x %02x %02x %02x %02x %02x %02x %02x",
			&b[0], &b[1], &b[2], &b[3], &b[4], &b[5], &b[6], &b[7])
		if err == nil && n == 8 {
			load := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
			exec := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
			return Meta{Load: load, Exec: exec}, true
		}
	}

	return Meta{}, false
}

// epochBase is 1900-01-01, the zero point for the protocol's centisecond
// timestamp.
var epochBase = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

func centiseconds(t time.Time) uint64 {
	d := t.Sub(epochBase)
	if d < 0 {
		return 0
	}
	return uint64(d / (10 * time.Millisecond))
}
