package volume

import (
	"fmt"
	"os"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Writer sequences one archive's volume files, splitting onto a new file
// whenever the configured split size would otherwise be exceeded (§4.3
// Write).
type Writer struct {
	basePath  string
	archID    uint32
	eccLevel  uint32
	splitSize int64 // 0 disables splitting
	overwrite bool

	volNum  uint32
	file    *os.File
	written int64 // bytes written to the current volume, including VOLHEAD

	created []string // every volume path created this run, for delete-all on abort
}

// Create opens the first volume file and writes its provisional VOLHEAD
// (lastvol=false; rewritten by Close if this turns out to be the only
// volume).
func Create(basePath string, archID uint32, eccLevel uint32, splitSize int64, overwrite bool) (*Writer, error) {
	w := &Writer{basePath: basePath, archID: archID, eccLevel: eccLevel, splitSize: splitSize, overwrite: overwrite}
	if err := w.openVolume(0); err != nil {
		return nil, err
	}
	return w, nil
}

// VolumePath returns the on-disk path for volNum: the base path for volume
// 0, "<base>.NNN" for later volumes.
func (w *Writer) VolumePath(volNum uint32) string {
	if volNum == 0 {
		return w.basePath
	}
	return fmt.Sprintf("%s.%03d", w.basePath, volNum)
}

func (w *Writer) openVolume(volNum uint32) error {
	path := w.VolumePath(volNum)
	flags := os.O_WRONLY | os.O_CREATE
	if w.overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errs.Wrap(errs.Exists, "volume file already exists: "+path, err)
		}
		return errs.Wrap(errs.Open, "create volume file: "+path, err)
	}
	w.file = f
	w.volNum = volNum
	w.created = append(w.created, path)

	head := Descriptor{
		ArchID: w.archID, Type: consts.VolHead,
		VolNum: volNum, MinVer: consts.FormatVersion, EccLevel: w.eccLevel, LastVol: false,
	}
	n, err := w.file.Write(head.Marshal())
	if err != nil {
		return errs.Wrap(errs.Write, "write volume head", err)
	}
	w.written = int64(n)
	return nil
}

// splitCheck reports whether writing an additional `size` bytes (plus
// bracketing BLKHEAD/BLKFOOT descriptors) would exceed the configured split
// size, and the current volume already holds at least one block.
func (w *Writer) splitCheck(size int64) bool {
	if w.splitSize <= 0 {
		return false
	}
	alreadyHasData := w.written > consts.VolumeDescriptorSize
	projected := w.written + 2*consts.VolumeDescriptorSize + size + consts.VolumeDescriptorSize // trailing VOLFOOT too
	return alreadyHasData && projected > w.splitSize
}

// closeVolume writes the VOLFOOT descriptor, rewrites VOLHEAD at offset 0
// with the final lastVol flag, and closes the file.
func (w *Writer) closeVolume(lastVol bool) error {
	foot := Descriptor{ArchID: w.archID, Type: consts.VolFoot, VolNum: w.volNum, MinVer: consts.FormatVersion, EccLevel: w.eccLevel, LastVol: lastVol}
	if _, err := w.file.Write(foot.Marshal()); err != nil {
		return errs.Wrap(errs.Write, "write volume foot", err)
	}
	head := Descriptor{ArchID: w.archID, Type: consts.VolHead, VolNum: w.volNum, MinVer: consts.FormatVersion, EccLevel: w.eccLevel, LastVol: lastVol}
	if _, err := w.file.WriteAt(head.Marshal(), 0); err != nil {
		return errs.Wrap(errs.Write, "rewrite volume head", err)
	}
	if err := w.file.Sync(); err != nil {
		return errs.Wrap(errs.Write, "sync volume", err)
	}
	return w.file.Close()
}

// WriteBlock frames data (already FEC-encoded bytes for one frame) with
// BLKHEAD/BLKFOOT descriptors, splitting onto a new volume first if needed
// (§4.3 Write, write_block).
func (w *Writer) WriteBlock(blkNum uint64, data []byte) error {
	if w.splitCheck(int64(len(data))) {
		if err := w.closeVolume(false); err != nil {
			return err
		}
		if err := w.openVolume(w.volNum + 1); err != nil {
			return err
		}
	}

	head := Descriptor{ArchID: w.archID, Type: consts.BlockHead, BlkNum: blkNum, BlkID: w.volNum, BytesUsed: uint32(len(data))}
	n, err := w.file.Write(head.Marshal())
	if err != nil {
		return errs.Wrap(errs.Write, "write block head", err)
	}
	w.written += int64(n)

	n, err = w.file.Write(data)
	if err != nil {
		return errs.Wrap(errs.Write, "write block data", err)
	}
	w.written += int64(n)

	foot := Descriptor{ArchID: w.archID, Type: consts.BlockFoot, BlkNum: blkNum, BlkID: w.volNum, BytesUsed: uint32(len(data))}
	n, err = w.file.Write(foot.Marshal())
	if err != nil {
		return errs.Wrap(errs.Write, "write block foot", err)
	}
	w.written += int64(n)
	return nil
}

// Close finalizes the last volume, marking it lastvol=true.
func (w *Writer) Close() error {
	return w.closeVolume(true)
}

// CreatedVolumes returns every volume path created this run, in creation
// order, for delete-all on abort (§4.3, §5 resource discipline).
func (w *Writer) CreatedVolumes() []string {
	out := make([]string, len(w.created))
	copy(out, w.created)
	return out
}

// DeleteAll removes every volume this writer created, used when status
// transitions to ABORTED during save.
func (w *Writer) DeleteAll() error {
	var firstErr error
	for _, path := range w.created {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
