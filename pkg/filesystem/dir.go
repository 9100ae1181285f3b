package filesystem

import (
	"os"
	"syscall"

	"github.com/google/uuid"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// DirFileSystemProvider treats a plain directory as a "filesystem" (§6):
// Probe synthesizes an Info from a statfs call, Mkfs is os.MkdirAll, and
// Mount/Umount are no-ops. This lets save-dir/restore-dir and the engine's
// test suite exercise every other component without a real block device or
// host mount syscalls.
type DirFileSystemProvider struct{}

func NewDirFileSystemProvider() *DirFileSystemProvider { return &DirFileSystemProvider{} }

func (*DirFileSystemProvider) Family() string { return "dir" }

func (*DirFileSystemProvider) Probe(mountpoint string) (Info, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(mountpoint, &stat); err != nil {
		return Info{}, errs.Wrap(errs.Stat, "statfs "+mountpoint, err)
	}
	blockSize := uint32(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	id, err := uuid.NewRandom()
	if err != nil {
		return Info{}, errs.Wrap(errs.Unknown, "generate synthetic filesystem uuid", err)
	}
	return Info{
		Family:      "dir",
		UUID:        id.String(),
		BytesTotal:  total,
		BytesUsed:   total - free,
		BlockSize:   blockSize,
		SectorSize:  blockSize,
		ClusterSize: blockSize,
	}, nil
}

func (*DirFileSystemProvider) Mkfs(device string, info Info, overrides Overrides) error {
	if err := os.MkdirAll(device, 0755); err != nil {
		return errs.Wrap(errs.Write, "create destination directory: "+device, err)
	}
	return nil
}

func (*DirFileSystemProvider) Mount(device, mountpoint string, options []string) error {
	return nil
}

func (*DirFileSystemProvider) Umount(mountpoint string) error {
	return nil
}

func (*DirFileSystemProvider) RequiredMountOptions() (require, forbid []string) {
	return nil, nil
}
