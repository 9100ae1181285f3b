// Package packer implements the small-file packer (SPEC_FULL.md §4.8 step
// 5): many small regular files are buffered and flushed together as one
// shared data block, rather than each paying for its own block header and
// compression overhead, the same record-group idiom an ISO9660-style
// directory-record batcher uses to pack multiple records into one on-disk
// sector; here the batching unit is a data block instead of a sector.
package packer

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Member is one small file buffered in the packer, recording where its
// bytes land within the eventual shared block.
type Member struct {
	Path   string
	Offset int
	Size   int
}

// Packer accumulates small-file contents until either the member count or
// the accumulated byte size would exceed its limits, at which point the
// caller must Flush it into one shared data block.
type Packer struct {
	maxCount int
	maxBytes int

	buf     []byte
	members []Member
}

// New builds a Packer flushing at count members or blockSize bytes,
// whichever comes first (§4.8 step 5: count reaches 512 or packed size
// reaches the block size).
func New(maxCount, blockSize int) *Packer {
	if maxCount <= 0 {
		maxCount = consts.SmallFileGroupMaxCount
	}
	if blockSize <= 0 {
		blockSize = consts.DefaultBlockSize
	}
	return &Packer{maxCount: maxCount, maxBytes: blockSize}
}

// WouldOverflow reports whether adding a file of the given size would force
// a flush before it could be added.
func (p *Packer) WouldOverflow(size int) bool {
	return len(p.members) >= p.maxCount || len(p.buf)+size > p.maxBytes
}

// Add buffers one small file's content. Callers must check WouldOverflow
// (and Flush if so) before calling Add with a file that would not fit.
func (p *Packer) Add(path string, content []byte) error {
	if len(content) > p.maxBytes {
		return errs.New(errs.InvalidArg, "file too large for small-file packer")
	}
	p.members = append(p.members, Member{Path: path, Offset: len(p.buf), Size: len(content)})
	p.buf = append(p.buf, content...)
	return nil
}

// Count returns the number of buffered members.
func (p *Packer) Count() int { return len(p.members) }

// Empty reports whether no member is currently buffered.
func (p *Packer) Empty() bool { return len(p.members) == 0 }

// Flush returns the accumulated shared block bytes and member index, then
// resets the packer for the next group.
func (p *Packer) Flush() ([]byte, []Member) {
	data, members := p.buf, p.members
	p.buf = nil
	p.members = nil
	return data, members
}

// Slice extracts one member's content out of a shared block previously
// produced by Flush, used by the restore driver to split a RegularMulti
// group's single data block back into individual files (§4.9).
func Slice(block []byte, m Member) ([]byte, error) {
	if m.Offset < 0 || m.Size < 0 || m.Offset+m.Size > len(block) {
		return nil, errs.New(errs.Corrupt, "small-file group member out of bounds")
	}
	return block[m.Offset : m.Offset+m.Size], nil
}
