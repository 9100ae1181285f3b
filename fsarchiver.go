// Package fsarchiver provides the top-level API a caller (CLI or embedder)
// uses to create, inspect, save to, and restore from one archive, in the
// same façade-struct-plus-functional-options shape an Open/Create pair
// exposes over an ISO9660 image (SPEC_FULL.md §6 "Operations").
package fsarchiver

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-fsarchiver/fsarchiver/pkg/blockrec"
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/fec"
	"github.com/go-fsarchiver/fsarchiver/pkg/filesystem"
	"github.com/go-fsarchiver/fsarchiver/pkg/header"
	"github.com/go-fsarchiver/fsarchiver/pkg/iobuffer"
	"github.com/go-fsarchiver/fsarchiver/pkg/logging"
	"github.com/go-fsarchiver/fsarchiver/pkg/option"
	"github.com/go-fsarchiver/fsarchiver/pkg/record"
	"github.com/go-fsarchiver/fsarchiver/pkg/restore"
	"github.com/go-fsarchiver/fsarchiver/pkg/save"
	"github.com/go-fsarchiver/fsarchiver/pkg/volume"
)

// Archiver is a handle on one archive file, opened either for a fresh
// Create (about to be saved to) or an existing Open (about to be read from
// or restored).
type Archiver struct {
	path   string
	archID uint32
	log    *logging.Logger
}

// Create starts a brand-new archive at path. Nothing is written to disk
// until the first SaveFilesystems/SaveDir call.
func Create(path string, opts ...option.CreateOption) (*Archiver, error) {
	o := option.CreateOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ArchID == 0 {
		o.ArchID = rand.Uint32()
	}
	return &Archiver{path: path, archID: o.ArchID, log: logging.DefaultLogger()}, nil
}

// Open opens an existing archive at path for reading (info/restore
// operations). Unlike Create, Open validates the archive's volume framing
// immediately so a caller learns about a missing/corrupt volume up front.
func Open(path string, opts ...option.OpenOption) (*Archiver, error) {
	o := option.DefaultOpenOptions()
	for _, opt := range opts {
		opt(&o)
	}
	reader, err := volume.Open(path, o.PromptMissingVolume)
	if err != nil {
		return nil, err
	}
	reader.Close()
	return &Archiver{path: path, log: o.Logger}, nil
}

// Source names one filesystem to save: its archive-relative index, its
// already-mounted (read-only) tree, and the provider that produced it.
// Re-exported from pkg/save so callers of this package don't need to import
// pkg/save directly for the common case.
type Source = save.Source

// SaveFilesystems runs save-fs (§4.8): one save pass across every source,
// writing a's archive to disk.
func (a *Archiver) SaveFilesystems(ctx context.Context, sources []Source, opts ...option.SaveOption) error {
	o := option.DefaultSaveOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = a.log
	}
	return save.Run(ctx, a.path, a.archID, sources, o)
}

// SaveDir runs save-dir: a convenience wrapper treating one plain directory
// as filesystem index 0 via DirFileSystemProvider.
func (a *Archiver) SaveDir(ctx context.Context, dir string, opts ...option.SaveOption) error {
	src := Source{FSIndex: 0, Mountpoint: dir, Provider: filesystem.NewDirFileSystemProvider()}
	return a.SaveFilesystems(ctx, []Source{src}, opts...)
}

// RestoreFilesystems runs restore-fs (§4.9): restores every filesystem named
// in opts' Destinations onto the providers registry resolves by family.
func (a *Archiver) RestoreFilesystems(ctx context.Context, registry *filesystem.Registry, opts ...option.RestoreOption) (restore.Result, error) {
	o := option.DefaultRestoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = a.log
	}
	return restore.Run(ctx, a.path, registry, o)
}

// RestoreDir runs restore-dir: a convenience wrapper restoring filesystem
// index 0 into destDir via DirFileSystemProvider.
func (a *Archiver) RestoreDir(ctx context.Context, destDir string, opts ...option.RestoreOption) (restore.Result, error) {
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())
	opts = append([]option.RestoreOption{option.WithDestination(0, destDir), option.WithMkfsFamily(0, "dir")}, opts...)
	return a.RestoreFilesystems(ctx, registry, opts...)
}

// Info is the archive-info operation's result: the archive identity plus
// every filesystem's recorded metadata, read without mkfs/mount (§4.9 steps
// 1-2 stop short of object-stream processing).
type Info struct {
	ArchID      uint32
	CreatedAt   time.Time
	FSCount     int
	FileSystems []filesystem.Info
}

// Info runs archive-info: decodes every FEC frame and walks the resulting
// record stream for the MAIN header and each per-filesystem FS-info record,
// skipping over object/block records without reconstructing any file
// content (§4.9 steps 1-2, stopping short of object-stream processing).
func (a *Archiver) Info(prompt volume.PromptFunc) (Info, error) {
	reader, err := volume.Open(a.path, prompt)
	if err != nil {
		return Info{}, err
	}
	defer reader.Close()

	fecCodec, err := fec.New(int(reader.EccLevel()))
	if err != nil {
		return Info{}, err
	}
	frameSize := fecCodec.N() * consts.FECStoredPacketSize

	buf := iobuffer.New(consts.FECFrameRawSize, consts.IOBufferDefaultBlocks)
	stream := iobuffer.NewStream(buf)

	var out Info
	g := new(errgroup.Group)
	g.Go(func() error {
		defer stream.SetEndOfBuffer()
		for {
			raw, _, eof, err := reader.ReadBlock(frameSize)
			if err != nil {
				return err
			}
			if eof {
				return nil
			}
			packets, err := fec.UnmarshalFrame(raw, fecCodec.N())
			if err != nil {
				return err
			}
			present := make([]bool, len(packets))
			for i := range present {
				present[i] = true
			}
			plain, _, err := fecCodec.Decode(packets, present)
			if err != nil {
				return err
			}
			if err := stream.Write(plain); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		var mainRead bool
		for {
			res, err := record.Read(stream)
			if err != nil {
				return err
			}
			if res.EOF {
				return nil
			}
			switch res.Record.HeadType {
			case consts.HeadMain:
				if mainRead {
					continue
				}
				m, err := header.FromDictionary(res.Record.Dico)
				if err != nil {
					return err
				}
				out.ArchID = m.ArchID
				out.CreatedAt = time.Unix(m.CreatedUnix, 0).UTC()
				out.FSCount = int(m.FSCount)
				mainRead = true
			case consts.HeadFSInfo:
				info, err := filesystem.InfoFromDictionary(res.Record.Dico)
				if err != nil {
					return err
				}
				out.FileSystems = append(out.FileSystems, info)
			case consts.HeadBlock:
				// A block's raw payload follows its BLKH record directly on
				// the stream rather than as a dictionary item; skip it to
				// stay aligned with the next record.
				b, err := blockrec.FromDictionary(res.Record.Dico)
				if err != nil {
					return err
				}
				if _, _, err := stream.ReadN(int(b.ArchiveSize)); err != nil {
					return err
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// Close releases any resources held on behalf of a. Archiver methods open
// and close their own volume handles per call, so Close is a no-op kept for
// symmetry with Open.
func (a *Archiver) Close() error { return nil }
