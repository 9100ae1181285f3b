// Package save implements the save driver (SPEC_FULL.md §4.8): one walker
// per requested filesystem feeding a shared compressor pool, serializer and
// FEC/volume-writer pipeline, coordinating its own multi-stage pipeline
// with golang.org/x/sync/errgroup.
package save

import (
	"context"
	"crypto/md5"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/go-fsarchiver/fsarchiver/pkg/blockrec"
	"github.com/go-fsarchiver/fsarchiver/pkg/compressor"
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/crypt"
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
	"github.com/go-fsarchiver/fsarchiver/pkg/fec"
	"github.com/go-fsarchiver/fsarchiver/pkg/filesystem"
	"github.com/go-fsarchiver/fsarchiver/pkg/header"
	"github.com/go-fsarchiver/fsarchiver/pkg/iobuffer"
	"github.com/go-fsarchiver/fsarchiver/pkg/logging"
	"github.com/go-fsarchiver/fsarchiver/pkg/object"
	"github.com/go-fsarchiver/fsarchiver/pkg/option"
	"github.com/go-fsarchiver/fsarchiver/pkg/packer"
	"github.com/go-fsarchiver/fsarchiver/pkg/queue"
	"github.com/go-fsarchiver/fsarchiver/pkg/record"
	"github.com/go-fsarchiver/fsarchiver/pkg/status"
	"github.com/go-fsarchiver/fsarchiver/pkg/volume"
	"github.com/go-fsarchiver/fsarchiver/pkg/xattr"
)

// Source is one filesystem queued for a save run: its archive-relative
// index, its already-mounted (read-only) source tree, and the provider that
// produced it.
type Source struct {
	FSIndex    uint16
	Mountpoint string
	Provider   filesystem.Provider
}

// blockMeta rides in queue.BlockInfo.Meta so the serializer knows which
// filesystem a block belongs to without threading it through the
// compressor pool, which only ever touches Raw/Archived.
type blockMeta struct {
	FSIndex uint16
}

// Run executes one save across every source, writing a fresh archive at
// archivePath (§4.8, §5 "Thread roster on save"). It returns once every
// volume has been finalized, or the first error any stage reports.
func Run(ctx context.Context, archivePath string, archID uint32, sources []Source, opts option.SaveOptions) error {
	log := opts.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	registry := compressor.NewRegistry()
	codec, err := registry.ByName(opts.CompressAlgo)
	if err != nil {
		return err
	}

	var encCodec crypt.Codec
	if opts.EncryptAlgo != "" && opts.EncryptAlgo != "none" {
		switch opts.EncryptAlgo {
		case "aes-gcm":
			encCodec, err = crypt.NewAESGCMCodec(opts.EncryptPass)
			if err != nil {
				return err
			}
		default:
			return errs.New(errs.InvalidArg, "unknown encryption algorithm: "+opts.EncryptAlgo)
		}
	}

	fecCodec, err := fec.New(opts.EccLevel)
	if err != nil {
		return err
	}

	writer, err := volume.Create(archivePath, archID, uint32(opts.EccLevel), opts.SplitSize, opts.Overwrite)
	if err != nil {
		return err
	}

	st := status.New()
	stop := st.WatchSignals()
	defer stop()

	q := queue.New(consts.QueueDefaultCapacity)
	q.Cancel = st.IsDone
	iobuf := iobuffer.New(consts.FECFrameRawSize, consts.IOBufferDefaultBlocks)
	iobuf.Cancel = st.IsDone
	stream := iobuffer.NewStream(iobuf)

	jobs := opts.CompressJobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > consts.MaxCompressJobs {
		jobs = consts.MaxCompressJobs
	}

	g, _ := errgroup.WithContext(ctx)
	doneCompress := make(chan struct{})

	fail := func(err error) error {
		st.SetFailed()
		return err
	}

	g.Go(func() error {
		defer close(doneCompress)
		if err := writeMainHeaders(q, archID, len(sources), time.Now()); err != nil {
			return fail(err)
		}
		for _, src := range sources {
			if st.IsDone() {
				break
			}
			if err := walkFilesystem(q, src, opts, log); err != nil {
				return fail(err)
			}
		}
		q.SetEndOfQueue()
		return nil
	})

	g.Go(func() error {
		st.IncSecondary()
		defer st.DecSecondary()
		if err := compressor.RunCompressPool(q, jobs, codec, opts.CompressLevel, encCodec, doneCompress); err != nil {
			return fail(err)
		}
		return nil
	})

	g.Go(func() error {
		st.IncSecondary()
		defer st.DecSecondary()
		err := serialize(q, stream)
		stream.SetEndOfBuffer()
		if err != nil {
			return fail(err)
		}
		return nil
	})

	g.Go(func() error {
		st.IncSecondary()
		defer st.DecSecondary()
		if err := encodeAndWrite(stream, fecCodec, writer, st); err != nil {
			return fail(err)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil || st.IsAborted() || st.IsFailed() {
		if delErr := writer.DeleteAll(); delErr != nil {
			log.Error(delErr, "delete volumes after failed save")
		}
		if runErr != nil {
			return runErr
		}
		return errs.New(errs.Unknown, "save aborted")
	}
	st.SetFinished()
	return nil
}

// writeMainHeaders enqueues the archive-wide MAIN record, padded to
// header.PaddedCopies copies so a damaged leading copy doesn't require a
// second volume to recover from (§4.9 step 1).
func writeMainHeaders(q *queue.Queue, archID uint32, fsCount int, createdAt time.Time) error {
	main := header.New(archID, fsCount, createdAt)
	dico := main.ToDictionary()
	for i := 0; i < header.PaddedCopies; i++ {
		if err := q.EnqueueHeader(dico, consts.HeadMain, consts.GlobalFSIndex); err != nil {
			return err
		}
	}
	return nil
}

// walkFilesystem probes src, emits its FS-info/FS-begin/object records and
// data-end marker, routing file contents through q for the compressor pool
// to pick up (§4.8 steps 1-6).
func walkFilesystem(q *queue.Queue, src Source, opts option.SaveOptions, log *logging.Logger) error {
	info, err := src.Provider.Probe(src.Mountpoint)
	if err != nil {
		return err
	}
	if info.OriginalDevice == "" {
		info.OriginalDevice = src.Mountpoint
	}
	if err := q.EnqueueHeader(info.ToDictionary(), consts.HeadFSInfo, src.FSIndex); err != nil {
		return err
	}
	if err := q.EnqueueHeader(dictionary.New(), consts.HeadFSBegin, src.FSIndex); err != nil {
		return err
	}

	pk := packer.New(consts.SmallFileGroupMaxCount, consts.DefaultBlockSize)
	var pending []*object.Entry
	hardlinks := make(map[[2]uint64]string)

	flush := func() error {
		if pk.Empty() {
			return nil
		}
		data, members := pk.Flush()
		for i, e := range pending {
			e.GroupCount = len(members)
			e.GroupOffset = members[i].Offset
			if err := q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex); err != nil {
				return err
			}
		}
		_, err := q.EnqueueBlock(&queue.BlockInfo{Raw: data, Meta: blockMeta{FSIndex: src.FSIndex}}, queue.StatusTodo)
		pending = nil
		return err
	}

	walkErr := filepath.Walk(src.Mountpoint, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			log.Error(err, "walk", "path", path)
			return nil
		}
		rel, err := filepath.Rel(src.Mountpoint, path)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}
		if excluded(rel, filepath.Base(path), opts.Exclude) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		sys, _ := fi.Sys().(*syscall.Stat_t)
		e := commonEntry(path, rel, fi, sys)

		switch {
		case fi.IsDir():
			e.Type = object.TypeDir
			return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)

		case fi.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			e.Type = object.TypeSymlink
			e.LinkTarget = target
			return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)

		case fi.Mode()&os.ModeNamedPipe != 0:
			e.Type = object.TypeFifo
			return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)

		case fi.Mode()&os.ModeSocket != 0:
			e.Type = object.TypeSocket
			return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)

		case fi.Mode()&os.ModeDevice != 0:
			e.Type = object.TypeDevice
			if sys != nil {
				e.DevMajor = unix.Major(uint64(sys.Rdev))
				e.DevMinor = unix.Minor(uint64(sys.Rdev))
			}
			return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)

		default:
			if sys != nil && sys.Nlink > 1 {
				key := [2]uint64{uint64(sys.Dev), sys.Ino}
				if orig, seen := hardlinks[key]; seen {
					e.Type = object.TypeHardlink
					e.LinkTarget = orig
					return q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex)
				}
				hardlinks[key] = rel
			}

			size := fi.Size()
			e.Size = size
			if size < consts.SmallFileThreshold {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				e.Type = object.TypeRegularMulti
				e.MD5 = md5.Sum(content)
				if pk.WouldOverflow(len(content)) {
					if err := flush(); err != nil {
						return err
					}
				}
				if err := pk.Add(rel, content); err != nil {
					return err
				}
				pending = append(pending, e)
				return nil
			}

			e.Type = object.TypeRegularUnique
			if err := q.EnqueueHeader(e.ToDictionary(), consts.HeadObject, src.FSIndex); err != nil {
				return err
			}
			return streamLargeFile(q, path, src.FSIndex)
		}
	})
	if walkErr != nil {
		return walkErr
	}
	if err := flush(); err != nil {
		return err
	}
	return q.EnqueueHeader(dictionary.New(), consts.HeadDataEnd, src.FSIndex)
}

// commonEntry builds the attribute-only part of an Entry shared by every
// object type, including whatever extended attributes the source honors.
func commonEntry(path, rel string, fi os.FileInfo, sys *syscall.Stat_t) *object.Entry {
	e := &object.Entry{Path: rel, Mode: fi.Mode(), Mtime: fi.ModTime()}
	if sys != nil {
		e.UID = int(sys.Uid)
		e.GID = int(sys.Gid)
	}
	if pairs, err := xattr.List(path); err == nil {
		for _, p := range pairs {
			e.Xattrs = append(e.Xattrs, object.Xattr{Name: p.Name, Value: p.Value})
		}
	}
	return e
}

// excluded reports whether base (the object's own name) or rel (its
// archive-relative path) matches any exclude pattern (§4.8 step 4).
// Ancestor directories are covered for free: a matching ancestor already
// returned filepath.SkipDir, so its children are never visited here.
func excluded(rel, base string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// streamLargeFile reads path in DefaultBlockSize chunks, enqueuing one
// block per non-hole chunk and skipping all-zero chunks past the point a
// sparse region is detected, then enqueues the file-footer with the whole
// file's MD5 once the last chunk has streamed past (§4.8 step 5, "Sparse
// files").
func streamLargeFile(q *queue.Queue, path string, fsIndex uint16) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.Open, "open source file: "+path, err)
	}
	defer f.Close()

	hasher := md5.New()
	buf := make([]byte, consts.DefaultBlockSize)
	var offset uint64
	var sparse bool

	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 {
			chunk := buf[:n]
			hasher.Write(chunk)
			if isAllZero(chunk) {
				sparse = true
			} else {
				cp := make([]byte, n)
				copy(cp, chunk)
				if _, err := q.EnqueueBlock(&queue.BlockInfo{
					Raw:    cp,
					Offset: offset,
					Meta:   blockMeta{FSIndex: fsIndex},
				}, queue.StatusTodo); err != nil {
					return err
				}
			}
			offset += uint64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return errs.Wrap(errs.Read, "read source file: "+path, rerr)
		}
	}

	var sum [16]byte
	copy(sum[:], hasher.Sum(nil))
	return q.EnqueueHeader(object.FooterDictionary(sum, sparse), consts.HeadFileFooter, fsIndex)
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// serialize drains q in archive order, writing each header's record and
// each block's BLKH record plus raw payload to stream (§4.6 "dequeue_first",
// §5 "dequeue-to-iobuffer converter").
func serialize(q *queue.Queue, stream *iobuffer.Stream) error {
	for {
		item, ok, err := q.DequeueFirst()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch item.Kind() {
		case queue.KindHeader:
			h := item.Header()
			if err := record.Write(stream, h.Dico, h.HeadType, h.FSIndex); err != nil {
				return err
			}
		case queue.KindBlock:
			b := item.Block()
			fsIndex := consts.GlobalFSIndex
			if m, ok := b.Meta.(blockMeta); ok {
				fsIndex = m.FSIndex
			}
			info := blockrec.Info{
				Offset:       b.Offset,
				RealSize:     b.RealSize,
				ArchiveSize:  b.ArchiveSize,
				Checksum:     b.Checksum,
				CompressAlgo: b.CompressAlgo,
				EncryptAlgo:  b.EncryptAlgo,
			}
			if err := record.Write(stream, info.ToDictionary(), consts.HeadBlock, fsIndex); err != nil {
				return err
			}
			if _, err := stream.Write(b.Archived); err != nil {
				return err
			}
		}
	}
}

// encodeAndWrite pulls fixed-size raw frames off stream, FEC-encodes each
// and writes it to writer, finalizing the last (possibly short) frame by
// zero-padding it (§4.4, §4.3 Write).
func encodeAndWrite(stream *iobuffer.Stream, codec *fec.Codec, writer *volume.Writer, st *status.Status) error {
	var blkNum uint64
	for {
		if st.IsAborted() || st.IsFailed() {
			return errs.New(errs.Closed, "save aborted before volume finalized")
		}
		chunk, more, err := stream.ReadN(consts.FECFrameRawSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if len(chunk) < consts.FECFrameRawSize {
			padded := make([]byte, consts.FECFrameRawSize)
			copy(padded, chunk)
			chunk = padded
		}
		packets, err := codec.Encode(chunk)
		if err != nil {
			return err
		}
		if err := writer.WriteBlock(blkNum, fec.MarshalFrame(packets)); err != nil {
			return err
		}
		blkNum++
		if !more {
			break
		}
	}
	return writer.Close()
}
