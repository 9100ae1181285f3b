// Package xattr reads and writes a file's extended attributes for the
// object record's extended-attribute section (SPEC_FULL.md §3, "Object
// entry... extended attributes (name/value pairs)"). Grounded on
// golang.org/x/sys/unix, already pulled in transitively by golang.org/x/term
// and golang.org/x/crypto, promoted to a direct dependency since this is the
// only component that needs the raw xattr syscalls the standard library's
// syscall package does not expose on its own.
package xattr

import (
	"golang.org/x/sys/unix"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Pair is one extended attribute name/value.
type Pair struct {
	Name  string
	Value []byte
}

// List reads every extended attribute on path. A filesystem that does not
// support xattrs at all (ENOTSUP) is treated as "no attributes" rather than
// an error.
func List(path string) ([]Pair, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Read, "listxattr "+path, err)
	}
	if size == 0 {
		return nil, nil
	}
	namesBuf := make([]byte, size)
	n, err := unix.Listxattr(path, namesBuf)
	if err != nil {
		return nil, errs.Wrap(errs.Read, "listxattr "+path, err)
	}
	names := splitNUL(namesBuf[:n])

	out := make([]Pair, 0, len(names))
	for _, name := range names {
		vsize, err := unix.Getxattr(path, name, nil)
		if err != nil {
			continue
		}
		val := make([]byte, vsize)
		if vsize > 0 {
			n, err := unix.Getxattr(path, name, val)
			if err != nil {
				continue
			}
			val = val[:n]
		}
		out = append(out, Pair{Name: name, Value: val})
	}
	return out, nil
}

// Apply sets every pair on path, best-effort: a target filesystem that
// rejects one attribute (ENOTSUP, name too long, value too large) does not
// abort the rest (§8 Round-trip: "native extra attributes... preserved when
// the target filesystem is the same family", implying degraded targets may
// legitimately drop some).
func Apply(path string, pairs []Pair) error {
	var firstErr error
	for _, p := range pairs {
		if err := unix.Setxattr(path, p.Name, p.Value, 0); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.Write, "setxattr "+path+" "+p.Name, err)
		}
	}
	return firstErr
}

func splitNUL(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				out = append(out, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
