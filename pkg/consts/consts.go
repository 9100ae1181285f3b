// Package consts collects the magic numbers, fixed sizes and limits that the
// archive's on-disk format is defined in terms of (SPEC_FULL.md §6).
package consts

const (
	// FormatVersion is the current on-disk format version, compared against
	// each filesystem's recorded minver on restore.
	FormatVersion uint64 = 1

	// Logical record magics framing every record header (§3, §6).
	RecordMagic1 uint32 = 0x31486c46 // "FlH1"
	RecordMagic2 uint32 = 0x32486c46 // "FlH2"

	// RecordHeaderSize is the fixed encoded size of a logical record header,
	// excluding the dictionary payload: magic1,headtype,fsindex,itemcount,
	// dicolen,dicosum,magic2 = 4+4+2+2+4+4+4.
	RecordHeaderSize = 24

	// GlobalFSIndex is the fsindex sentinel meaning "not tied to one
	// filesystem" (main header, disk layout, padding, data-end).
	GlobalFSIndex uint16 = 0xFFFF

	// VolumeMagic frames every volume descriptor (§6).
	VolumeMagic uint32 = 0x31415346 // "FSA1"

	// VolumeDescriptorSize is the fixed on-disk size of a volume descriptor:
	// magic(4) archid(4) csum(4) type(2) union(18).
	VolumeDescriptorSize = 32
	// VolumeDescriptorUnionSize is the union payload trailing the fixed
	// header fields of a volume descriptor.
	VolumeDescriptorUnionSize = 18

	// FECPacketSize is the size of one packet's payload before its MD5
	// trailer (§4.4).
	FECPacketSize = 4096
	// FECPacketTrailerSize is the size of the MD5 trailer appended to every
	// stored FEC packet.
	FECPacketTrailerSize = 16
	// FECStoredPacketSize is FECPacketSize+FECPacketTrailerSize.
	FECStoredPacketSize = FECPacketSize + FECPacketTrailerSize
	// FECSourcePackets (K) is the number of source (data) packets per frame.
	FECSourcePackets = 16
	// FECMaxParityPackets is the maximum ecclevel, bounding N at K+16.
	FECMaxParityPackets = 16
	// FECFrameRawSize is the exact size of one raw FEC frame payload before
	// encoding: K * 4096 bytes.
	FECFrameRawSize = FECSourcePackets * FECPacketSize

	// DefaultBlockSize is the maximum size of one large-file content block
	// (FSA_MAX_BLKSIZE in the distilled spec).
	DefaultBlockSize = 256 * 1024
	// SmallFileThreshold bounds the small-file packer: a regular file
	// smaller than this is routed into the packer, and one of this size or
	// larger becomes its own chain.
	SmallFileThreshold = 128 * 1024
	// SmallFileGroupMaxCount is the largest number of files the packer
	// accumulates into one group before it must flush.
	SmallFileGroupMaxCount = 512

	// MaxCompressJobs bounds the compressor/decompressor worker pool size
	// (FSA_MAX_COMPJOBS).
	MaxCompressJobs = 32

	// QueueDefaultCapacity is the default bound on in-flight queue items
	// between the walker/compressor stage and the volume writer.
	QueueDefaultCapacity = 64
	// IOBufferDefaultBlocks is the default bound, in FEC-frame-sized blocks,
	// on the iobuffer sitting between the serializer and the FEC layer.
	IOBufferDefaultBlocks = 8

	// BlockingPollIntervalMillis is the timeout, in milliseconds, every
	// blocking wait uses so it can re-poll the status word (§4.10, §5).
	BlockingPollIntervalMillis = 1000
)

// HeadType tags the kind of payload carried by a logical record (§3).
type HeadType uint32

const (
	HeadMain  HeadType = iota + 1 // MAIN: main archive header
	HeadPad                      // PADG: padding, used to pad the header to a fixed number of copies
	HeadDisk                     // DILA: disk/partition layout
	HeadFSInfo                   // FSIN: per-filesystem info
	HeadFSBegin                  // FSYB: per-filesystem begin marker
	HeadDirsInfo                  // DIRS: directory-count info
	HeadObject                    // OBJT: one filesystem object
	HeadBlock                     // BLKH: one data-block header
	HeadFileFooter                // FILF: end of a large-file chain, carries MD5
	HeadDataEnd                   // DATF: end of a filesystem's object stream
)

// String renders the four-character tag used in logs and in the on-disk
// convention documented by SPEC_FULL.md §6.
func (h HeadType) String() string {
	switch h {
	case HeadMain:
		return "MAIN"
	case HeadPad:
		return "PADG"
	case HeadDisk:
		return "DILA"
	case HeadFSInfo:
		return "FSIN"
	case HeadFSBegin:
		return "FSYB"
	case HeadDirsInfo:
		return "DIRS"
	case HeadObject:
		return "OBJT"
	case HeadBlock:
		return "BLKH"
	case HeadFileFooter:
		return "FILF"
	case HeadDataEnd:
		return "DATF"
	default:
		return "????"
	}
}

// VolumeDescriptorType tags the kind of volume descriptor (§3, §6).
type VolumeDescriptorType uint16

const (
	VolHead VolumeDescriptorType = iota + 1
	VolFoot
	BlockHead
	BlockFoot
)

func (t VolumeDescriptorType) String() string {
	switch t {
	case VolHead:
		return "VOLHEAD"
	case VolFoot:
		return "VOLFOOT"
	case BlockHead:
		return "BLKHEAD"
	case BlockFoot:
		return "BLKFOOT"
	default:
		return "UNKNOWN"
	}
}
