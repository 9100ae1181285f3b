// Package volume implements the outer volume/block framing layer (§4.3,
// §6): fixed-size descriptors bracket both a whole volume file and each FEC
// frame within it, so a reader can recover file boundaries and block
// boundaries even after localized corruption, the same way an ISO9660
// volume descriptor frames itself: fixed header, typed union payload,
// checksum.
package volume

import (
	"encoding/binary"

	"github.com/go-fsarchiver/fsarchiver/pkg/checksum"
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Descriptor is one 32-byte volume-level framing record (§6): a VOLHEAD or
// VOLFOOT bracketing a whole volume file, or a BLKHEAD/BLKFOOT bracketing
// one FEC frame's stored bytes.
type Descriptor struct {
	ArchID uint32
	Type   consts.VolumeDescriptorType

	// VolHead/VolFoot fields.
	VolNum   uint32
	MinVer   uint64
	EccLevel uint32
	LastVol  bool

	// BlockHead/BlockFoot fields.
	BlkNum     uint64
	BlkID      uint32
	BytesUsed  uint32
}

// Marshal encodes the descriptor to its fixed 32-byte wire form, computing
// the checksum over the buffer with the checksum field itself zeroed.
func (d Descriptor) Marshal() []byte {
	buf := make([]byte, consts.VolumeDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:4], consts.VolumeMagic)
	binary.LittleEndian.PutUint32(buf[4:8], d.ArchID)
	// buf[8:12] is the checksum, left zero until computed below.
	binary.LittleEndian.PutUint16(buf[12:14], uint16(d.Type))

	union := buf[14:32]
	switch d.Type {
	case consts.VolHead, consts.VolFoot:
		binary.LittleEndian.PutUint32(union[0:4], d.VolNum)
		binary.LittleEndian.PutUint64(union[4:12], d.MinVer)
		binary.LittleEndian.PutUint32(union[12:16], d.EccLevel)
		if d.LastVol {
			union[16] = 1
		}
	case consts.BlockHead, consts.BlockFoot:
		binary.LittleEndian.PutUint64(union[0:8], d.BlkNum)
		binary.LittleEndian.PutUint32(union[8:12], d.BlkID)
		binary.LittleEndian.PutUint32(union[12:16], d.BytesUsed)
	}

	sum := checksum.Fletcher32(buf)
	binary.LittleEndian.PutUint32(buf[8:12], sum)
	return buf
}

// UnmarshalDescriptor decodes and validates a 32-byte descriptor buffer.
// wantArchID, when non-nil, rejects descriptors belonging to a different
// archive instance.
func UnmarshalDescriptor(buf []byte, wantArchID *uint32) (Descriptor, error) {
	var d Descriptor
	if len(buf) != consts.VolumeDescriptorSize {
		return d, errs.New(errs.Corrupt, "volume descriptor wrong size")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != consts.VolumeMagic {
		return d, errs.New(errs.Corrupt, "volume descriptor bad magic")
	}
	archID := binary.LittleEndian.Uint32(buf[4:8])
	storedSum := binary.LittleEndian.Uint32(buf[8:12])

	verify := make([]byte, consts.VolumeDescriptorSize)
	copy(verify, buf)
	binary.LittleEndian.PutUint32(verify[8:12], 0)
	if checksum.Fletcher32(verify) != storedSum {
		return d, errs.New(errs.Corrupt, "volume descriptor checksum mismatch")
	}
	if wantArchID != nil && archID != *wantArchID {
		return d, errs.New(errs.WrongArchive, "volume descriptor archive id mismatch")
	}

	d.ArchID = archID
	d.Type = consts.VolumeDescriptorType(binary.LittleEndian.Uint16(buf[12:14]))

	union := buf[14:32]
	switch d.Type {
	case consts.VolHead, consts.VolFoot:
		d.VolNum = binary.LittleEndian.Uint32(union[0:4])
		d.MinVer = binary.LittleEndian.Uint64(union[4:12])
		d.EccLevel = binary.LittleEndian.Uint32(union[12:16])
		d.LastVol = union[16] != 0
	case consts.BlockHead, consts.BlockFoot:
		d.BlkNum = binary.LittleEndian.Uint64(union[0:8])
		d.BlkID = binary.LittleEndian.Uint32(union[8:12])
		d.BytesUsed = binary.LittleEndian.Uint32(union[12:16])
	default:
		return d, errs.New(errs.Corrupt, "volume descriptor unknown type")
	}
	return d, nil
}
