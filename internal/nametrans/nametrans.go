// Package nametrans implements the client-path-to-Unix-path translator:
// base selection, `.`/`/` syntax swap with dot-stuffing, `^` parent
// traversal, and per-component case-insensitive wildcard matching with
// 10-character truncation.
package nametrans

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("nametrans: disc not found")
	ErrNoChannel  = errors.New("nametrans: no channel")
)

// Bases supplies the four handle-relative roots a client path may select.
// Root is always available; URD/CSD/LIB are empty strings if the
// corresponding handle isn't set (yielding ErrNoChannel).
type Bases struct {
	Root string
	URD  string
	CSD  string
	LIB  string
}

// Translate maps client path p to a Unix path relative to Root, following
// the five resolution steps base selection, syntax swap, parent
// traversal, component matching, and truncation. The result is always a
// path under Root; it never contains ".." escaping the root because each
// component is matched against the real directory listing rather than
// followed blindly.
func Translate(b Bases, p string) (string, error) {
	base, rest, err := selectBase(b, p)
	if err != nil {
		return "", err
	}

	rest = dotStuff(syntaxSwap(rest))
	rest = unhat(rest)

	if rest == "" {
		rest = "."
	}

	return matchComponents(b.Root, base, rest)
}

// selectBase consumes a leading base-selector prefix and returns the base
// directory plus the remaining client-relative path.
func selectBase(b Bases, p string) (base string, rest string, err error) {
	if p == "" {
		return b.CSD, "", nil
	}

	// `:discname.` or `$discname.` prefix — only one disc is served, so
	// any name after the colon/dollar must match nothing in particular;
	// the single served root answers for every disc name.
	if p[0] == ':' {
		rest := p[1:]
		if i := strings.IndexByte(rest, '.'); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		return b.Root, rest, nil
	}

	if len(p) >= 1 {
		sel := p[0]
		if sel == '$' || sel == '&' || sel == '@' || sel == '%' {
			if len(p) == 1 || p[1] == '.' {
				tail := ""
				if len(p) > 1 {
					tail = p[2:]
				}
				switch sel {
				case '$':
					return requireBase(b.Root, "root", tail)
				case '&':
					return requireBase(b.URD, "urd", tail)
				case '@':
					return requireBase(b.CSD, "csd", tail)
				case '%':
					return requireBase(b.LIB, "lib", tail)
				}
			}
		}
	}

	return b.CSD, p, nil
}

func requireBase(base, name string, rest ...string) (string, string, error) {
	if base == "" {
		return "", "", ErrNoChannel
	}
	r := ""
	if len(rest) > 0 {
		r = rest[0]
	}
	return base, r, nil
}

// syntaxSwap turns `.` separators into `/`, the protocol's directory
// separator swap with Unix paths.
func syntaxSwap(p string) string {
	return strings.ReplaceAll(p, ".", "/")
}

// dotStuff prefixes any leaf beginning with "." with ".." so that `.`,
// `..` and `.Acorn` can never be referenced by a client.
func dotStuff(p string) string {
	parts := strings.Split(p, "/")
	for i, c := range parts {
		if strings.HasPrefix(c, ".") {
			parts[i] = ".." + c
		}
	}
	return strings.Join(parts, "/")
}

// unhat replaces each "^" component with a parent traversal.
func unhat(p string) string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c == "^" {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	return strings.Join(out, "/")
}

const maxLeafLen = 10

// significantName strips a ",xxx" type suffix and truncates to the
// protocol's 10 significant characters.
func significantName(name string) string {
	if i := strings.LastIndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	if len(name) > maxLeafLen {
		name = name[:maxLeafLen]
	}
	return name
}

// matchComponents walks rest under root/base, resolving each component
// either literally or, failing that, by a case-insensitive wildcard scan
// of the parent directory.
func matchComponents(root, base, rest string) (string, error) {
	if base == "" {
		base = root
	}

	cur := base
	if rest == "." || rest == "" {
		return relJoin(root, cur)
	}

	for _, comp := range strings.Split(rest, "/") {
		if comp == "" {
			continue
		}

		next := filepath.Join(cur, comp)
		if _, err := os.Lstat(next); err == nil {
			cur = next
			continue
		}

		matched, err := matchInDir(cur, comp)
		if err != nil {
			return "", err
		}
		cur = filepath.Join(cur, matched)
	}

	return relJoin(root, cur)
}

// matchInDir scans dir case-insensitively (with 10-char truncation and
// `?`/`*` wildcards) for a name matching pattern; the first match wins. If
// nothing matches, pattern itself is returned so callers can still resolve
// a not-yet-existing leaf (create/save targets).
func matchInDir(dir, pattern string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return pattern, nil
	}

	sigPattern := strings.ToLower(significantName(pattern))
	for _, e := range entries {
		name := significantName(e.Name())
		if wildcardMatch(sigPattern, strings.ToLower(name)) {
			return e.Name(), nil
		}
	}

	return pattern, nil
}

// wildcardMatch matches name against pattern using Acorn's `?` (single
// char) and `*` (anchored run to end of fragment) wildcards.
func wildcardMatch(pattern, name string) bool {
	return match(pattern, name)
}

func match(pattern, name string) bool {
	if pattern == "" {
		return name == ""
	}
	switch pattern[0] {
	case '*':
		rest := pattern[1:]
		if rest == "" {
			return true
		}
		for i := 0; i <= len(name); i++ {
			if match(rest, name[i:]) {
				return true
			}
		}
		return false
	case '?':
		if name == "" {
			return false
		}
		return match(pattern[1:], name[1:])
	default:
		if name == "" || pattern[0] != name[0] {
			return false
		}
		return match(pattern[1:], name[1:])
	}
}

func relJoin(root, cur string) (string, error) {
	rel, err := filepath.Rel(root, cur)
	if err != nil {
		return "", err
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}
