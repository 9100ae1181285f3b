package volume

import (
	"fmt"
	"io"
	"os"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// PromptFunc asks the operator for an alternate path to a missing volume
// (§4.3 Read: "if missing, prompts for an alternate path"). It receives the
// path the reader expected and returns the path to use instead.
type PromptFunc func(expectedPath string) (string, error)

// Reader sequences an archive's volume files for reading, validating
// framing at both the volume and block layers and resynchronizing past
// unrecognized bytes (§4.3 Read, Block read).
type Reader struct {
	basePath string
	archID   uint32
	haveArch bool
	eccLevel uint32
	minVer   uint64

	volNum  uint32
	file    *os.File
	lastVol bool

	prompt PromptFunc
}

// Open opens the first volume and validates its framing. archID is
// discovered from whichever end of the file validates, then pinned for
// every subsequent descriptor check.
func Open(basePath string, prompt PromptFunc) (*Reader, error) {
	r := &Reader{basePath: basePath, prompt: prompt}
	if err := r.openVolume(0); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) volumePath(volNum uint32) string {
	if volNum == 0 {
		return r.basePath
	}
	return fmt.Sprintf("%s.%03d", r.basePath, volNum)
}

// openVolume opens volNum, prompting for an alternate path if missing, and
// validates the volume-level framing (§4.3 Read): accept the file if either
// the head or the tail descriptor validates.
func (r *Reader) openVolume(volNum uint32) error {
	path := r.volumePath(volNum)
	f, err := os.Open(path)
	if os.IsNotExist(err) && r.prompt != nil {
		alt, perr := r.prompt(path)
		if perr != nil {
			return errs.Wrap(errs.Open, "prompt for missing volume", perr)
		}
		f, err = os.Open(alt)
		if err == nil {
			path = alt
		}
	}
	if err != nil {
		return errs.Wrap(errs.Open, "open volume file: "+path, err)
	}

	head, headErr := readDescriptorAt(f, 0, r.archIDPtr())
	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return errs.Wrap(errs.Stat, "stat volume file", statErr)
	}
	tail, tailErr := readDescriptorAt(f, info.Size()-consts.VolumeDescriptorSize, r.archIDPtr())

	var d Descriptor
	switch {
	case headErr == nil && head.Type == consts.VolHead:
		d = head
	case tailErr == nil && tail.Type == consts.VolFoot:
		d = tail
	default:
		f.Close()
		return errs.New(errs.WrongVolume, "neither volume head nor tail validates: "+path)
	}

	if d.VolNum != volNum {
		f.Close()
		return errs.New(errs.WrongVolume, "unexpected volume number in "+path)
	}
	if !r.haveArch {
		r.archID = d.ArchID
		r.haveArch = true
		r.eccLevel = d.EccLevel
		r.minVer = d.MinVer
		if d.MinVer > consts.FormatVersion {
			f.Close()
			return errs.New(errs.WrongVersion, "archive requires a newer format version")
		}
	} else if d.ArchID != r.archID {
		f.Close()
		return errs.New(errs.WrongArchive, "volume belongs to a different archive: "+path)
	}

	r.file = f
	r.volNum = volNum
	r.lastVol = d.LastVol
	if _, err := r.file.Seek(consts.VolumeDescriptorSize, io.SeekStart); err != nil {
		f.Close()
		return errs.Wrap(errs.Seek, "seek past volume head", err)
	}
	return nil
}

func (r *Reader) archIDPtr() *uint32 {
	if !r.haveArch {
		return nil
	}
	return &r.archID
}

func readDescriptorAt(f *os.File, offset int64, wantArchID *uint32) (Descriptor, error) {
	if offset < 0 {
		return Descriptor{}, errs.New(errs.Corrupt, "negative descriptor offset")
	}
	buf := make([]byte, consts.VolumeDescriptorSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return Descriptor{}, errs.Wrap(errs.Read, "read descriptor", err)
	}
	return UnmarshalDescriptor(buf, wantArchID)
}

// EccLevel returns the ecclevel recorded by the volume head, available once
// Open succeeds.
func (r *Reader) EccLevel() uint32 { return r.eccLevel }

// ReadBlock reads the next FEC frame's stored bytes, resynchronizing past
// unrecognized framing a byte at a time (§4.3 Block read) and following
// volume boundaries transparently. frameSize is the fixed stored size of
// one FEC frame (FECStoredPacketSize * N) for this archive.
func (r *Reader) ReadBlock(frameSize int) (data []byte, skipped int, eof bool, err error) {
	for {
		chunk := make([]byte, 2*consts.VolumeDescriptorSize+frameSize)
		n, rerr := io.ReadFull(r.file, chunk)
		if rerr == io.EOF || (rerr == io.ErrUnexpectedEOF && n < consts.VolumeDescriptorSize) {
			if r.lastVol {
				return nil, skipped, true, nil
			}
			if err := r.advanceVolume(); err != nil {
				return nil, skipped, false, err
			}
			continue
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return nil, skipped, false, errs.Wrap(errs.Read, "read block frame", rerr)
		}

		lead, leadErr := UnmarshalDescriptor(chunk[:consts.VolumeDescriptorSize], &r.archID)
		if leadErr == nil && lead.Type == consts.BlockHead && n == len(chunk) {
			payload := chunk[consts.VolumeDescriptorSize : consts.VolumeDescriptorSize+frameSize]
			// Reposition past payload and BLKFOOT both, landing exactly on
			// the next block's BLKHEAD (or the volume's VOLFOOT) so the next
			// call never has to resync across a footer it already knows is
			// there.
			if _, err := r.file.Seek(-int64(n)+int64(len(chunk)), io.SeekCurrent); err != nil {
				return nil, skipped, false, errs.Wrap(errs.Seek, "reposition after block", err)
			}
			return payload, skipped, false, nil
		}
		if leadErr == nil && lead.Type == consts.VolFoot {
			if lead.LastVol {
				return nil, skipped, true, nil
			}
			if err := r.advanceVolume(); err != nil {
				return nil, skipped, false, err
			}
			continue
		}

		// Unrecognized framing: slide one byte and retry (resynchronization).
		if _, err := r.file.Seek(-int64(n)+1, io.SeekCurrent); err != nil {
			return nil, skipped, false, errs.Wrap(errs.Seek, "resync seek", err)
		}
		skipped++
	}
}

func (r *Reader) advanceVolume() error {
	if r.file != nil {
		r.file.Close()
	}
	return r.openVolume(r.volNum + 1)
}

// Close releases the currently open volume file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
