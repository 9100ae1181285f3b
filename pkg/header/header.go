// Package header defines the archive-wide MAIN record (SPEC_FULL.md §4.9
// step 1, §6 "Head types"): the first thing a restore reads, carrying the
// archive identity and the number of filesystems that follow. Mirrors the
// small header+dictionary structs in pkg/filesystem and pkg/object, scoped
// to the one record that is not tied to any single filesystem.
package header

import (
	"time"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Main is the decoded form of a MAIN record.
type Main struct {
	ArchID      uint32
	FormatVer   uint64
	FSCount     uint32
	CreatedUnix int64
}

const (
	keyArchID uint16 = iota
	keyFormatVer
	keyFSCount
	keyCreatedUnix
)

// ToDictionary serializes m for a record.Write call under HeadMain.
func (m Main) ToDictionary() *dictionary.Dictionary {
	d := dictionary.New()
	d.AddU32(0, keyArchID, m.ArchID)
	d.AddU64(0, keyFormatVer, m.FormatVer)
	d.AddU32(0, keyFSCount, m.FSCount)
	d.AddU64(0, keyCreatedUnix, uint64(m.CreatedUnix))
	return d
}

// FromDictionary rebuilds a Main from a decoded MAIN record.
func FromDictionary(d *dictionary.Dictionary) (Main, error) {
	var m Main
	archID, err := d.GetU32(0, keyArchID)
	if err != nil {
		return m, errs.Wrap(errs.Corrupt, "main header missing archid", err)
	}
	formatVer, err := d.GetU64(0, keyFormatVer)
	if err != nil {
		return m, errs.Wrap(errs.Corrupt, "main header missing format version", err)
	}
	fsCount, err := d.GetU32(0, keyFSCount)
	if err != nil {
		return m, errs.Wrap(errs.Corrupt, "main header missing filesystem count", err)
	}
	created, _ := d.GetU64(0, keyCreatedUnix)
	m.ArchID, m.FormatVer, m.FSCount = archID, formatVer, fsCount
	m.CreatedUnix = int64(created)
	return m, nil
}

// New builds a Main for a fresh archive, stamping the current format version.
func New(archID uint32, fsCount int, createdAt time.Time) Main {
	return Main{ArchID: archID, FormatVer: consts.FormatVersion, FSCount: uint32(fsCount), CreatedUnix: createdAt.Unix()}
}

// PaddedCopies is how many times the MAIN record is written back to back
// (§4.9 step 1: "read main header, accept first of up to three padded
// copies"), tolerating a damaged leading copy without a second volume.
const PaddedCopies = 3
