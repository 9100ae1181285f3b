// Package blockrec serializes one BLKH record's metadata: everything the
// restore driver needs to know about a data block before it reads the raw
// payload that follows it in the stream (SPEC_FULL.md §3, §4.6). The raw
// payload itself never goes through a dictionary item (it can be up to
// DefaultBlockSize, past the 64 KiB a dictionary value allows) and is
// instead read directly off the iobuffer.Stream right after this record.
package blockrec

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Section is the sole dictionary section a BLKH record uses.
const Section byte = 0

const (
	KeyOffset uint16 = iota
	KeyRealSize
	KeyArchiveSize
	KeyChecksum
	KeyCompressAlgo
	KeyEncryptAlgo
)

// Info is the decoded form of one BLKH record.
type Info struct {
	Offset       uint64
	RealSize     uint32
	ArchiveSize  uint32
	Checksum     uint32
	CompressAlgo byte
	EncryptAlgo  byte
}

// ToDictionary serializes Info for a record.Write call under HeadBlock.
func (b Info) ToDictionary() *dictionary.Dictionary {
	d := dictionary.New()
	d.AddU64(Section, KeyOffset, b.Offset)
	d.AddU32(Section, KeyRealSize, b.RealSize)
	d.AddU32(Section, KeyArchiveSize, b.ArchiveSize)
	d.AddU32(Section, KeyChecksum, b.Checksum)
	d.AddU8(Section, KeyCompressAlgo, b.CompressAlgo)
	d.AddU8(Section, KeyEncryptAlgo, b.EncryptAlgo)
	return d
}

// FromDictionary rebuilds an Info from a decoded BLKH record.
func FromDictionary(d *dictionary.Dictionary) (Info, error) {
	var b Info
	offset, err := d.GetU64(Section, KeyOffset)
	if err != nil {
		return b, errs.Wrap(errs.Corrupt, "block record missing offset", err)
	}
	realSize, err := d.GetU32(Section, KeyRealSize)
	if err != nil {
		return b, errs.Wrap(errs.Corrupt, "block record missing real size", err)
	}
	archiveSize, err := d.GetU32(Section, KeyArchiveSize)
	if err != nil {
		return b, errs.Wrap(errs.Corrupt, "block record missing archive size", err)
	}
	checksum, err := d.GetU32(Section, KeyChecksum)
	if err != nil {
		return b, errs.Wrap(errs.Corrupt, "block record missing checksum", err)
	}
	compressAlgo, err := d.GetU8(Section, KeyCompressAlgo)
	if err != nil {
		return b, errs.Wrap(errs.Corrupt, "block record missing compress algo", err)
	}
	encryptAlgo, _ := d.GetU8(Section, KeyEncryptAlgo)
	b.Offset, b.RealSize, b.ArchiveSize, b.Checksum = offset, realSize, archiveSize, checksum
	b.CompressAlgo, b.EncryptAlgo = compressAlgo, encryptAlgo
	return b, nil
}
