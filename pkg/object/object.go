// Package object defines the dictionary section/key layout carried inside
// OBJT records (SPEC_FULL.md §3, §4.8, §4.9) and the in-memory Entry type
// the save/restore drivers build records from and rebuild trees with.
package object

import (
	"os"
	"time"

	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Type distinguishes what kind of filesystem entry an OBJT record names.
type Type byte

const (
	TypeDir Type = iota + 1
	TypeRegularUnique
	TypeRegularMulti // member of a small-file group sharing one data block
	TypeSymlink
	TypeHardlink
	TypeDevice
	TypeFifo
	TypeSocket
)

// Dictionary sections used within one OBJT item set.
const (
	SectionCommon byte = iota
	SectionFile
	SectionLink
	SectionDevice
)

// Keys within SectionCommon.
const (
	KeyPath byte = iota
	KeyType
	KeyMode
	KeyUID
	KeyGID
	KeyMtimeSec
	KeyMtimeNsec
	KeyXattrName // repeatable: one item per xattr, paired with KeyXattrValue
	KeyXattrValue
)

// Keys within SectionFile (regular files only).
const (
	KeyFileSize byte = iota
	KeyFileMD5
	KeySparse // presence marks the file as containing detected holes
	KeyGroupCount
	KeyGroupOffset // offset of this member within the shared small-file-group block
)

// Keys within SectionLink.
const (
	KeyLinkTarget byte = iota
	KeyLinkTargetType // LINKTARGETTYPE fallback when target fs lacks the link kind
)

// Keys within SectionDevice.
const (
	KeyDevMajor byte = iota
	KeyDevMinor
)

// LinkTargetType records how a symlink/hardlink degraded on a filesystem
// that does not support it (§4.9: "replaced by a directory or empty file").
type LinkTargetType byte

const (
	LinkTargetNative LinkTargetType = iota
	LinkTargetDirectory
	LinkTargetEmptyFile
)

// Xattr is one extended attribute name/value pair.
type Xattr struct {
	Name  string
	Value []byte
}

// Entry is the decoded form of one OBJT record plus its footer, used by both
// the save walker (building one before serialization) and the restore driver
// (rebuilding one after deserialization).
type Entry struct {
	Path    string
	Type    Type
	Mode    os.FileMode
	UID     int
	GID     int
	Mtime   time.Time
	Xattrs  []Xattr

	Size        int64
	MD5         [16]byte
	Sparse      bool
	GroupCount  int // total member count of this object's RegularMulti group
	GroupOffset int // this member's byte offset within the group's shared block

	LinkTarget     string
	LinkTargetType LinkTargetType

	DevMajor, DevMinor uint32
}

// ToDictionary serializes an Entry's metadata into a Dictionary ready for a
// record.Write call under HeadObject.
func (e *Entry) ToDictionary() *dictionary.Dictionary {
	d := dictionary.New()
	d.AddString(SectionCommon, uint16(KeyPath), e.Path)
	d.AddU8(SectionCommon, uint16(KeyType), byte(e.Type))
	d.AddU32(SectionCommon, uint16(KeyMode), uint32(e.Mode))
	d.AddU32(SectionCommon, uint16(KeyUID), uint32(e.UID))
	d.AddU32(SectionCommon, uint16(KeyGID), uint32(e.GID))
	d.AddU64(SectionCommon, uint16(KeyMtimeSec), uint64(e.Mtime.Unix()))
	d.AddU32(SectionCommon, uint16(KeyMtimeNsec), uint32(e.Mtime.Nanosecond()))
	for _, x := range e.Xattrs {
		d.AddString(SectionCommon, uint16(KeyXattrName), x.Name)
		d.AddBytes(SectionCommon, uint16(KeyXattrValue), x.Value)
	}

	switch e.Type {
	case TypeRegularUnique, TypeRegularMulti:
		d.AddU64(SectionFile, uint16(KeyFileSize), uint64(e.Size))
		if e.Type == TypeRegularMulti {
			// Small-file content is fully buffered by the packer before the
			// object record is written, so its MD5 is already known; a
			// large-file chain only knows its MD5 once the last block has
			// streamed past, hence the separate HeadFileFooter record.
			d.AddBytes(SectionFile, uint16(KeyFileMD5), e.MD5[:])
		}
		if e.Sparse {
			d.AddU8(SectionFile, uint16(KeySparse), 1)
		}
		if e.GroupCount > 0 {
			d.AddU32(SectionFile, uint16(KeyGroupCount), uint32(e.GroupCount))
			d.AddU32(SectionFile, uint16(KeyGroupOffset), uint32(e.GroupOffset))
		}
	case TypeSymlink, TypeHardlink:
		d.AddString(SectionLink, uint16(KeyLinkTarget), e.LinkTarget)
		d.AddU8(SectionLink, uint16(KeyLinkTargetType), byte(e.LinkTargetType))
	case TypeDevice:
		d.AddU32(SectionDevice, uint16(KeyDevMajor), e.DevMajor)
		d.AddU32(SectionDevice, uint16(KeyDevMinor), e.DevMinor)
	}
	return d
}

// FromDictionary rebuilds an Entry from a decoded OBJT dictionary.
func FromDictionary(d *dictionary.Dictionary) (*Entry, error) {
	e := &Entry{}

	path, ok := d.GetString(SectionCommon, uint16(KeyPath))
	if !ok {
		return nil, errs.New(errs.Corrupt, "object record missing path")
	}
	e.Path = path

	typ, err := d.GetU8(SectionCommon, uint16(KeyType))
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "object record missing type", err)
	}
	e.Type = Type(typ)

	mode, err := d.GetU32(SectionCommon, uint16(KeyMode))
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "object record missing mode", err)
	}
	e.Mode = os.FileMode(mode)

	if uid, err := d.GetU32(SectionCommon, uint16(KeyUID)); err == nil {
		e.UID = int(uid)
	}
	if gid, err := d.GetU32(SectionCommon, uint16(KeyGID)); err == nil {
		e.GID = int(gid)
	}
	sec, errSec := d.GetU64(SectionCommon, uint16(KeyMtimeSec))
	nsec, errNsec := d.GetU32(SectionCommon, uint16(KeyMtimeNsec))
	if errSec == nil && errNsec == nil {
		e.Mtime = time.Unix(int64(sec), int64(nsec)).UTC()
	}

	names := d.GetAll(SectionCommon, uint16(KeyXattrName))
	values := d.GetAll(SectionCommon, uint16(KeyXattrValue))
	for i := range names {
		if i >= len(values) {
			break
		}
		e.Xattrs = append(e.Xattrs, Xattr{Name: string(names[i].Value), Value: values[i].Value})
	}

	switch e.Type {
	case TypeRegularUnique, TypeRegularMulti:
		size, err := d.GetU64(SectionFile, uint16(KeyFileSize))
		if err != nil {
			return nil, errs.Wrap(errs.Corrupt, "regular-file object missing size", err)
		}
		e.Size = int64(size)
		if e.Type == TypeRegularMulti {
			sum, ok := d.GetBytes(SectionFile, uint16(KeyFileMD5))
			if !ok || len(sum) != 16 {
				return nil, errs.New(errs.Corrupt, "small-file object missing or malformed md5")
			}
			copy(e.MD5[:], sum)
		}
		if _, err := d.GetU8(SectionFile, uint16(KeySparse)); err == nil {
			e.Sparse = true
		}
		if count, err := d.GetU32(SectionFile, uint16(KeyGroupCount)); err == nil {
			e.GroupCount = int(count)
			if off, err := d.GetU32(SectionFile, uint16(KeyGroupOffset)); err == nil {
				e.GroupOffset = int(off)
			}
		}
	case TypeSymlink, TypeHardlink:
		target, ok := d.GetString(SectionLink, uint16(KeyLinkTarget))
		if !ok {
			return nil, errs.New(errs.Corrupt, "link object missing target")
		}
		e.LinkTarget = target
		if lt, err := d.GetU8(SectionLink, uint16(KeyLinkTargetType)); err == nil {
			e.LinkTargetType = LinkTargetType(lt)
		}
	case TypeDevice:
		major, errMaj := d.GetU32(SectionDevice, uint16(KeyDevMajor))
		minor, errMin := d.GetU32(SectionDevice, uint16(KeyDevMinor))
		if errMaj != nil || errMin != nil {
			return nil, errs.New(errs.Corrupt, "device object missing major/minor")
		}
		e.DevMajor, e.DevMinor = major, minor
	}
	return e, nil
}

// Keys in a FILF record's dictionary. A large-file chain's MD5 is only
// known once the last block has streamed past, and likewise whether any
// hole was skipped is only known once the whole chain has been walked, so
// both travel in the footer rather than the leading OBJT (§3, "Large-file
// chain").
const (
	footerKeyMD5 uint16 = iota
	footerKeySparse
)

// FooterDictionary builds the dictionary for a HeadFileFooter record.
func FooterDictionary(md5 [16]byte, sparse bool) *dictionary.Dictionary {
	d := dictionary.New()
	d.AddBytes(SectionCommon, footerKeyMD5, md5[:])
	if sparse {
		d.AddU8(SectionCommon, footerKeySparse, 1)
	}
	return d
}

// FooterMD5FromDictionary extracts the MD5 and sparse flag from a decoded
// FILF record.
func FooterMD5FromDictionary(d *dictionary.Dictionary) (md5 [16]byte, sparse bool, err error) {
	b, ok := d.GetBytes(SectionCommon, footerKeyMD5)
	if !ok || len(b) != 16 {
		return md5, false, errs.New(errs.Corrupt, "file-footer record missing or malformed md5")
	}
	copy(md5[:], b)
	if _, err := d.GetU8(SectionCommon, footerKeySparse); err == nil {
		sparse = true
	}
	return md5, sparse, nil
}
