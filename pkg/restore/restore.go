// Package restore implements the restore driver (SPEC_FULL.md §4.9): a
// volume-reader/FEC-decoder stage, a deserializer turning the resulting byte
// stream back into queue items, a decompressor pool, and a main consumer
// that walks the object stream rebuilding each selected filesystem on its
// destination, mirroring the save driver's pipeline in reverse (§5 "Thread
// roster on restore").
package restore

import (
	"bytes"
	"context"
	"crypto/md5"
	"os"
	"path/filepath"
	"sync/atomic"
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

// Result reports per-filesystem error counts accumulated during one restore
// run (§4.9 Resynchronization: "record the error count against the
// filesystem").
type Result struct {
	FSErrors map[int]int
}

func (r *Result) bump(fsIndex int) {
	if r.FSErrors == nil {
		r.FSErrors = make(map[int]int)
	}
	r.FSErrors[fsIndex]++
}

// Total sums every filesystem's error count, letting a caller decide
// pass/fail with one check rather than walking FSErrors itself (§6:
// "non-zero ... if any object restore failed").
func (r Result) Total() int {
	total := 0
	for _, n := range r.FSErrors {
		total += n
	}
	return total
}

// blockMeta rides in queue.BlockInfo.Meta so the consumer knows which
// filesystem a block belongs to without threading it through the
// decompressor pool, which only ever touches Raw/Archived.
type blockMeta struct {
	FSIndex uint16
}

// Run executes one restore from archivePath, recreating every filesystem
// named in opts.Destinations and skipping any other filesystem the archive
// carries (§4.9).
func Run(ctx context.Context, archivePath string, registry *filesystem.Registry, opts option.RestoreOptions) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	reader, err := volume.Open(archivePath, nil)
	if err != nil {
		return Result{}, err
	}
	fecCodec, err := fec.New(int(reader.EccLevel()))
	if err != nil {
		reader.Close()
		return Result{}, err
	}

	var decCodec crypt.Codec
	if opts.EncryptPass != "" {
		decCodec, err = crypt.NewAESGCMCodec(opts.EncryptPass)
		if err != nil {
			reader.Close()
			return Result{}, err
		}
		// Verify the passphrase against the first encrypted block before
		// any provider.Mkfs/Mount runs (§8 scenario 5: "restore exits with
		// WrongArchive-equivalent failure before writing anything to the
		// destination"), using a throwaway decode pass over its own
		// volume.Reader so the real pipeline below starts fresh.
		if err := verifyPassphrase(archivePath, fecCodec, decCodec); err != nil {
			reader.Close()
			return Result{}, err
		}
	}

	st := status.New()
	stop := st.WatchSignals()
	defer stop()

	q := queue.New(consts.QueueDefaultCapacity)
	q.Cancel = st.IsDone
	iobuf := iobuffer.New(consts.FECFrameRawSize, consts.IOBufferDefaultBlocks)
	iobuf.Cancel = st.IsDone
	stream := iobuffer.NewStream(iobuf)

	codecRegistry := compressor.NewRegistry()
	doneDecompress := make(chan struct{})

	g, _ := errgroup.WithContext(ctx)
	fail := func(err error) error {
		st.SetFailed()
		return err
	}

	g.Go(func() error {
		if err := decodeFrames(reader, fecCodec, stream, log); err != nil {
			return fail(err)
		}
		return nil
	})

	g.Go(func() error {
		defer close(doneDecompress)
		if err := deserialize(stream, q); err != nil {
			return fail(err)
		}
		return nil
	})

	g.Go(func() error {
		st.IncSecondary()
		defer st.DecSecondary()
		if err := compressor.RunDecompressPool(q, consts.MaxCompressJobs/4, codecRegistry, decCodec, doneDecompress); err != nil {
			return fail(err)
		}
		return nil
	})

	var result Result
	g.Go(func() error {
		res, err := consume(q, registry, opts, log)
		result = res
		if err != nil {
			return fail(err)
		}
		return nil
	})

	runErr := g.Wait()
	reader.Close()
	if runErr != nil {
		return result, runErr
	}
	st.SetFinished()
	return result, nil
}

// verifyPassphrase runs a throwaway decode pass over archivePath looking for
// the first encrypted block and attempting to decrypt it, so a wrong
// passphrase fails before Run's real pipeline below ever calls
// provider.Mkfs/Mount (§8 scenario 5). An archive with no encrypted blocks
// passes trivially; Run only calls this when opts.EncryptPass is set.
func verifyPassphrase(archivePath string, fecCodec *fec.Codec, decCodec crypt.Codec) error {
	reader, err := volume.Open(archivePath, nil)
	if err != nil {
		return err
	}
	defer reader.Close()

	iobuf := iobuffer.New(consts.FECFrameRawSize, consts.IOBufferDefaultBlocks)
	var stop atomic.Bool
	iobuf.Cancel = stop.Load
	stream := iobuffer.NewStream(iobuf)

	decodeErrCh := make(chan error, 1)
	go func() {
		decodeErrCh <- decodeFrames(reader, fecCodec, stream, logging.DefaultLogger())
	}()
	defer func() {
		stop.Store(true)
		<-decodeErrCh
	}()

	for {
		res, err := record.Read(stream)
		if err != nil {
			return err
		}
		if res.EOF {
			return nil
		}
		if res.Record.HeadType != consts.HeadBlock {
			continue
		}
		info, err := blockrec.FromDictionary(res.Record.Dico)
		if err != nil {
			return err
		}
		payload, ok, err := stream.ReadN(int(info.ArchiveSize))
		if err != nil {
			return err
		}
		if !ok {
			return errs.New(errs.Corrupt, "block payload truncated before archive-size bytes")
		}
		if info.EncryptAlgo != crypt.AlgoAESGCM {
			continue
		}
		_, err = decCodec.Decrypt(payload)
		return err
	}
}

// decodeFrames owns the FEC decoder: it reads one stored frame at a time
// from reader, decodes it, and writes the reconstructed raw bytes to stream
// for the deserializer to parse records from (§4.3 Read, §4.4).
func decodeFrames(reader *volume.Reader, fecCodec *fec.Codec, stream *iobuffer.Stream, log *logging.Logger) error {
	frameSize := consts.FECStoredPacketSize * fecCodec.N()
	defer stream.SetEndOfBuffer()
	for {
		data, skipped, eof, err := reader.ReadBlock(frameSize)
		if err != nil {
			return err
		}
		if skipped > 0 {
			log.Info("resynchronized past unrecognized framing", "bytes", skipped)
		}
		if eof {
			return nil
		}
		packets, err := fec.UnmarshalFrame(data, fecCodec.N())
		if err != nil {
			return err
		}
		present := make([]bool, fecCodec.N())
		for i := range present {
			present[i] = true
		}
		raw, _, err := fecCodec.Decode(packets, present)
		if err != nil {
			// An unrecoverable frame is a corruption event scoped to this
			// frame's bytes, not a reason to abort the whole restore (§7:
			// "FEC frame unrecoverable ... for block payloads, the
			// containing object is marked corrupt"). Substitute a
			// zero-filled frame so the byte stream stays aligned for
			// record.Read's own resync loop to recover from, the same
			// way a dropped volume byte range is handled.
			log.Error(err, "fec frame unrecoverable, substituting zero-filled frame")
			raw = make([]byte, consts.FECFrameRawSize)
		}
		if err := stream.Write(raw); err != nil {
			return err
		}
	}
}

// deserialize turns the raw byte stream back into logical records and
// queue items: headers go straight in as DONE, blocks go in as TODO for the
// decompressor pool to claim (§4.2, §4.6).
func deserialize(stream *iobuffer.Stream, q *queue.Queue) error {
	for {
		res, err := record.Read(stream)
		if err != nil {
			return err
		}
		if res.EOF {
			q.SetEndOfQueue()
			return nil
		}
		if res.Record.HeadType == consts.HeadBlock {
			info, err := blockrec.FromDictionary(res.Record.Dico)
			if err != nil {
				return err
			}
			payload, ok, err := stream.ReadN(int(info.ArchiveSize))
			if err != nil {
				return err
			}
			if !ok {
				return errs.New(errs.Corrupt, "block payload truncated before archive-size bytes")
			}
			if _, err := q.EnqueueBlock(&queue.BlockInfo{
				Archived:     payload,
				Offset:       info.Offset,
				RealSize:     info.RealSize,
				ArchiveSize:  info.ArchiveSize,
				Checksum:     info.Checksum,
				CompressAlgo: info.CompressAlgo,
				EncryptAlgo:  info.EncryptAlgo,
				Meta:         blockMeta{FSIndex: res.Record.FSIndex},
			}, queue.StatusTodo); err != nil {
				return err
			}
			continue
		}
		if err := q.EnqueueHeader(res.Record.Dico, res.Record.HeadType, res.Record.FSIndex); err != nil {
			return err
		}
	}
}

// uniqueState tracks one in-flight regular-file-unique chain between its
// OBJT record and its FILF footer.
type uniqueState struct {
	fsIndex    int
	path       string
	f          *os.File
	entrySize  uint64
	hashOffset uint64
	hasher     interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
	corrupt bool
}

// deferredDir is a directory whose final mtime must wait until every object
// under it has been created, since creating a child bumps its parent's
// mtime (§4.9, directory ordering note in §5).
type deferredDir struct {
	path  string
	mtime time.Time
}

// fsState is the mkfs/mount bookkeeping for the filesystem currently being
// restored.
type fsState struct {
	index       int
	active      bool
	provider    filesystem.Provider
	mountpoint  string
	deferredDir []deferredDir
}

// consume is the main restore loop: one filesystem active at a time, its
// object stream processed in archive order (§4.9 steps 2-3).
func consume(q *queue.Queue, registry *filesystem.Registry, opts option.RestoreOptions, log *logging.Logger) (Result, error) {
	var result Result

	var fs fsState
	var mainRead bool
	var unique *uniqueState
	var pendingGroup []*object.Entry

	for {
		item, ok, err := q.DequeueFirst()
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}

		if item.Kind() == queue.KindBlock {
			b := item.Block()
			fsIndex := fs.index
			if m, ok := b.Meta.(blockMeta); ok {
				fsIndex = int(m.FSIndex)
			}
			if !fs.active || fsIndex != fs.index {
				continue
			}
			handleBlock(b, fs.index, fs.mountpoint, &unique, &pendingGroup, &result)
			continue
		}

		h := item.Header()
		switch h.HeadType {
		case consts.HeadMain:
			if !mainRead {
				if _, err := header.FromDictionary(h.Dico); err != nil {
					return result, err
				}
				mainRead = true
			}

		case consts.HeadFSInfo:
			fsIndex := int(h.FSIndex)
			info, err := filesystem.InfoFromDictionary(h.Dico)
			if err != nil {
				return result, err
			}
			device, want := opts.Destinations[fsIndex]
			if !want {
				fs = fsState{index: fsIndex, active: false}
				continue
			}
			family := info.Family
			if override, ok := opts.MkfsFamily[fsIndex]; ok {
				family = override
			}
			provider, err := registry.Get(family)
			if err != nil {
				return result, err
			}
			overrides := opts.Overrides[fsIndex]
			if err := provider.Mkfs(device, info, overrides); err != nil {
				return result, err
			}
			mountpoint, err := os.MkdirTemp("", "fsarchiver-restore-*")
			if err != nil {
				return result, err
			}
			if err := provider.Mount(device, mountpoint, info.MountOptions); err != nil {
				return result, err
			}
			fs = fsState{index: fsIndex, active: true, provider: provider, mountpoint: mountpoint}

		case consts.HeadFSBegin:
			// Marker only; nothing to do.

		case consts.HeadObject:
			if !fs.active {
				continue
			}
			e, err := object.FromDictionary(h.Dico)
			if err != nil {
				result.bump(fs.index)
				continue
			}
			restoreObject(&fs, e, &unique, &pendingGroup, &result)

		case consts.HeadFileFooter:
			if !fs.active || unique == nil {
				continue
			}
			finishUnique(unique, h.Dico, &result)
			unique = nil

		case consts.HeadDataEnd:
			if fs.active {
				for _, dir := range fs.deferredDir {
					applyDirTimes(dir.path, dir.mtime)
				}
				if err := fs.provider.Umount(fs.mountpoint); err != nil {
					log.Error(err, "umount restore mountpoint", "path", fs.mountpoint)
				}
				os.RemoveAll(fs.mountpoint)
			}
			fs = fsState{}
			unique = nil
			pendingGroup = nil

		default:
			// Unrecognized head type where an object was expected: skip
			// and keep going (§4.9 Resynchronization).
			if fs.active {
				result.bump(fs.index)
			}
		}
	}
}

// restoreObject creates the filesystem node e describes and, for regular
// files, either opens a unique-file chain or buffers a small-file-group
// member.
func restoreObject(fs *fsState, e *object.Entry, unique **uniqueState, pendingGroup *[]*object.Entry, result *Result) {
	full := filepath.Join(fs.mountpoint, e.Path)
	switch e.Type {
	case object.TypeDir:
		if err := os.MkdirAll(full, e.Mode.Perm()); err != nil {
			result.bump(fs.index)
			return
		}
		os.Chmod(full, e.Mode.Perm())
		unix.Lchown(full, e.UID, e.GID)
		applyXattrs(full, e.Xattrs)
		fs.deferredDir = append(fs.deferredDir, deferredDir{path: full, mtime: e.Mtime})

	case object.TypeSymlink:
		if err := os.Symlink(e.LinkTarget, full); err != nil {
			// Target filesystem can't represent a symlink: degrade to an
			// empty regular file (§4.9, LINKTARGETTYPE fallback).
			f, ferr := os.Create(full)
			if ferr != nil {
				result.bump(fs.index)
				return
			}
			f.Close()
		}
		applyAttrs(full, e, true)

	case object.TypeHardlink:
		orig := filepath.Join(fs.mountpoint, e.LinkTarget)
		if err := os.Link(orig, full); err != nil {
			result.bump(fs.index)
			return
		}

	case object.TypeFifo:
		if err := unix.Mkfifo(full, uint32(e.Mode.Perm())); err != nil {
			result.bump(fs.index)
			return
		}
		applyAttrs(full, e, false)

	case object.TypeSocket:
		if err := unix.Mknod(full, unix.S_IFSOCK|uint32(e.Mode.Perm()), 0); err != nil {
			result.bump(fs.index)
			return
		}
		applyAttrs(full, e, false)

	case object.TypeDevice:
		mode := uint32(e.Mode.Perm())
		if e.Mode&os.ModeCharDevice != 0 {
			mode |= unix.S_IFCHR
		} else {
			mode |= unix.S_IFBLK
		}
		dev := int(unix.Mkdev(e.DevMajor, e.DevMinor))
		if err := unix.Mknod(full, mode, dev); err != nil {
			result.bump(fs.index)
			return
		}
		applyAttrs(full, e, false)

	case object.TypeRegularMulti:
		*pendingGroup = append(*pendingGroup, e)

	case object.TypeRegularUnique:
		f, err := os.Create(full)
		if err != nil {
			result.bump(fs.index)
			return
		}
		*unique = &uniqueState{
			fsIndex:   fs.index,
			path:      full,
			f:         f,
			entrySize: uint64(e.Size),
			hasher:    md5.New(),
		}
	}
}

// handleBlock routes one decompressed data block either into the in-flight
// unique-file chain or, once a small-file group's OBJT records are all in
// hand, slices the shared block into its member files.
func handleBlock(b *queue.BlockInfo, fsIndex int, mountpoint string, unique **uniqueState, pendingGroup *[]*object.Entry, result *Result) {
	if *unique != nil {
		u := *unique
		if b.DecodeErr != nil || b.Offset < u.hashOffset {
			u.corrupt = true
			return
		}
		// save's streamLargeFile never emits a block for an all-zero chunk
		// (§4.8 sparse handling), so a gap between the running hash offset
		// and this block's offset is an implicit hole, not corruption: the
		// hole bytes are already correct on disk (WriteAt leaves unwritten
		// regions zero), but the hasher still needs them fed to reproduce
		// the save-side MD5 computed over the literal zero bytes.
		if b.Offset > u.hashOffset {
			writeZeros(u.hasher, b.Offset-u.hashOffset)
			u.hashOffset = b.Offset
		}
		if _, err := u.f.WriteAt(b.Raw, int64(b.Offset)); err != nil {
			u.corrupt = true
			return
		}
		u.hasher.Write(b.Raw)
		u.hashOffset += uint64(len(b.Raw))
		return
	}

	group := *pendingGroup
	if len(group) == 0 || len(group) != group[0].GroupCount {
		return
	}
	if b.DecodeErr == nil {
		for _, e := range group {
			content, err := packer.Slice(b.Raw, packer.Member{Offset: e.GroupOffset, Size: int(e.Size)})
			if err != nil {
				result.bump(fsIndex)
				continue
			}
			full := filepath.Join(mountpoint, e.Path)
			if err := os.WriteFile(full, content, e.Mode.Perm()); err != nil {
				result.bump(fsIndex)
				continue
			}
			if md5.Sum(content) != e.MD5 {
				os.Remove(full)
				result.bump(fsIndex)
				continue
			}
			applyAttrs(full, e, false)
		}
	} else {
		result.bump(fsIndex)
	}
	*pendingGroup = nil
}

// finishUnique compares the streamed file's running MD5 (holes included as
// implicit zero runs) against the footer's MD5, unlinking on mismatch
// (§4.9: "verify file MD5 from the footer; on mismatch, unlink").
func finishUnique(u *uniqueState, dico *dictionary.Dictionary, result *Result) {
	md5sum, _, err := object.FooterMD5FromDictionary(dico)
	if err != nil {
		u.corrupt = true
	}
	if !u.corrupt && u.entrySize > u.hashOffset {
		writeZeros(u.hasher, u.entrySize-u.hashOffset)
	}
	mismatch := u.corrupt || err != nil || !bytes.Equal(u.hasher.Sum(nil), md5sum[:])
	u.f.Close()
	if mismatch {
		os.Remove(u.path)
		result.bump(u.fsIndex)
		return
	}
	os.Truncate(u.path, int64(u.entrySize))
}

// writeZeros feeds n zero bytes to hasher in bounded chunks, covering a
// trailing sparse hole that ran past the last written block.
func writeZeros(hasher interface{ Write([]byte) (int, error) }, n uint64) {
	zeros := make([]byte, 64*1024)
	for n > 0 {
		chunk := uint64(len(zeros))
		if n < chunk {
			chunk = n
		}
		hasher.Write(zeros[:chunk])
		n -= chunk
	}
}

// applyAttrs restores ownership, permissions, and timestamps on a freshly
// created filesystem node, plus its extended attributes. Ownership and
// timestamps use the no-follow calls (Lchown, AT_SYMLINK_NOFOLLOW) so a
// symlink's own metadata is set rather than its target's; extended
// attributes go through xattr.Apply, whose setxattr follows a symlink to
// its target.
func applyAttrs(path string, e *object.Entry, isSymlink bool) {
	if !isSymlink {
		os.Chmod(path, e.Mode.Perm())
	}
	unix.Lchown(path, e.UID, e.GID)
	ts := unix.NsecToTimespec(e.Mtime.UnixNano())
	unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{ts, ts}, unix.AT_SYMLINK_NOFOLLOW)
	applyXattrs(path, e.Xattrs)
}

func applyXattrs(path string, xs []object.Xattr) {
	if len(xs) == 0 {
		return
	}
	pairs := make([]xattr.Pair, len(xs))
	for i, x := range xs {
		pairs[i] = xattr.Pair{Name: x.Name, Value: x.Value}
	}
	xattr.Apply(path, pairs)
}

// applyDirTimes stamps a directory with its originally recorded mtime, done
// only after every object under it has been created so a child's creation
// doesn't bump the parent's mtime back out of sync.
func applyDirTimes(path string, mtime time.Time) {
	ts := unix.NsecToTimespec(mtime.UnixNano())
	unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{ts, ts}, 0)
}
