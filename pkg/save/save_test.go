package save

import (
	"bytes"
	"context"
	"crypto/md5"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
	"github.com/go-fsarchiver/fsarchiver/pkg/filesystem"
	"github.com/go-fsarchiver/fsarchiver/pkg/option"
	"github.com/go-fsarchiver/fsarchiver/pkg/restore"
)

func TestExcludedMatchesBaseAndRelPatterns(t *testing.T) {
	cases := []struct {
		rel, base string
		patterns  []string
		want      bool
	}{
		{"a.tmp", "a.tmp", []string{"*.tmp"}, true},
		{"dir/a.tmp", "a.tmp", []string{"*.tmp"}, true},
		{"dir/keep.txt", "keep.txt", []string{"*.tmp"}, false},
		{"dir/sub", "sub", []string{"dir/sub"}, true},
	}
	for _, c := range cases {
		if got := excluded(c.rel, c.base, c.patterns); got != c.want {
			t.Fatalf("excluded(%q, %q, %v) = %v, want %v", c.rel, c.base, c.patterns, got, c.want)
		}
	}
}

func TestIsAllZero(t *testing.T) {
	if !isAllZero(make([]byte, 4096)) {
		t.Fatal("all-zero buffer misreported as non-zero")
	}
	buf := make([]byte, 4096)
	buf[4095] = 1
	if isAllZero(buf) {
		t.Fatal("buffer with a trailing non-zero byte misreported as zero")
	}
}

// buildTree lays out a small directory with a mix of object types that
// exercises both the small-file packer path and the large-file streaming
// path on a subsequent save.
func buildTree(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "small.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatalf("WriteFile small: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested content"), 0644); err != nil {
		t.Fatalf("WriteFile nested: %v", err)
	}
	big := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1MiB, past SmallFileThreshold
	if err := os.WriteFile(filepath.Join(root, "big.bin"), big, 0644); err != nil {
		t.Fatalf("WriteFile big: %v", err)
	}
	if err := os.Symlink("small.txt", filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
}

func TestSaveDirRestoreDirRoundTrip(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	archivePath := filepath.Join(t.TempDir(), "archive.fsa")
	source := Source{
		FSIndex:    0,
		Mountpoint: src,
		Provider:   filesystem.NewDirFileSystemProvider(),
	}

	saveOpts := option.DefaultSaveOptions()
	saveOpts.CompressJobs = 2
	if err := Run(context.Background(), archivePath, 0x1234, []Source{source}, saveOpts); err != nil {
		t.Fatalf("Run (save): %v", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive file missing after save: %v", err)
	}

	dst := t.TempDir()
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())

	restoreOpts := option.DefaultRestoreOptions()
	restoreOpts.Destinations[0] = dst
	restoreOpts.MkfsFamily = map[int]string{0: "dir"}

	result, err := restore.Run(context.Background(), archivePath, registry, restoreOpts)
	if err != nil {
		t.Fatalf("Run (restore): %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected a clean restore, got %d errors: %+v", result.Total(), result.FSErrors)
	}

	assertFileEqual(t, filepath.Join(src, "small.txt"), filepath.Join(dst, "small.txt"))
	assertFileEqual(t, filepath.Join(src, "sub", "nested.txt"), filepath.Join(dst, "sub", "nested.txt"))
	assertFileEqual(t, filepath.Join(src, "big.bin"), filepath.Join(dst, "big.bin"))

	target, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("Readlink restored symlink: %v", err)
	}
	if target != "small.txt" {
		t.Fatalf("restored symlink target = %q, want %q", target, "small.txt")
	}
}

func TestSaveRestoreRoundTripWithCompressionAndEncryption(t *testing.T) {
	src := t.TempDir()
	buildTree(t, src)

	archivePath := filepath.Join(t.TempDir(), "archive.fsa")
	source := Source{
		FSIndex:    0,
		Mountpoint: src,
		Provider:   filesystem.NewDirFileSystemProvider(),
	}

	saveOpts := option.DefaultSaveOptions()
	saveOpts.CompressAlgo = "gzip"
	saveOpts.CompressLevel = 6
	saveOpts.EncryptAlgo = "aes-gcm"
	saveOpts.EncryptPass = "correct horse battery staple"
	if err := Run(context.Background(), archivePath, 1, []Source{source}, saveOpts); err != nil {
		t.Fatalf("Run (save): %v", err)
	}

	dst := t.TempDir()
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())

	restoreOpts := option.DefaultRestoreOptions()
	restoreOpts.Destinations[0] = dst
	restoreOpts.MkfsFamily = map[int]string{0: "dir"}
	restoreOpts.EncryptPass = "correct horse battery staple"

	result, err := restore.Run(context.Background(), archivePath, registry, restoreOpts)
	if err != nil {
		t.Fatalf("Run (restore): %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected a clean restore, got %d errors: %+v", result.Total(), result.FSErrors)
	}
	assertFileEqual(t, filepath.Join(src, "big.bin"), filepath.Join(dst, "big.bin"))
}

func TestSaveRestoreWrongPassphraseReportsErrors(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "secret.txt"), []byte("classified"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "archive.fsa")
	source := Source{FSIndex: 0, Mountpoint: src, Provider: filesystem.NewDirFileSystemProvider()}

	saveOpts := option.DefaultSaveOptions()
	saveOpts.EncryptAlgo = "aes-gcm"
	saveOpts.EncryptPass = "correct horse battery staple"
	if err := Run(context.Background(), archivePath, 2, []Source{source}, saveOpts); err != nil {
		t.Fatalf("Run (save): %v", err)
	}

	dst := t.TempDir()
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())
	restoreOpts := option.DefaultRestoreOptions()
	restoreOpts.Destinations[0] = dst
	restoreOpts.MkfsFamily = map[int]string{0: "dir"}
	restoreOpts.EncryptPass = "wrong passphrase entirely"

	_, err := restore.Run(context.Background(), archivePath, registry, restoreOpts)
	if err == nil {
		t.Fatal("expected restore to fail outright with the wrong passphrase")
	}
	if errs.KindOf(err) != errs.WrongArchive {
		t.Fatalf("expected errs.WrongArchive, got kind %v (%v)", errs.KindOf(err), err)
	}
	entries, readErr := os.ReadDir(dst)
	if readErr != nil {
		t.Fatalf("ReadDir dst: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing written to destination before passphrase failure, found %v", entries)
	}
}

// TestSaveRestoreHardlinkPair exercises §8 scenario 6: two directory entries
// sharing one inode must restore as a hardlinked pair, not as two
// independent copies, so a change visible through one path is visible
// through the other.
func TestSaveRestoreHardlinkPair(t *testing.T) {
	src := t.TempDir()
	// Past SmallFileThreshold so the entry walked first (alias.txt, which
	// sorts before original.txt) becomes a TypeRegularUnique object whose
	// destination file is created immediately on restore, before the
	// second path's TypeHardlink entry tries to os.Link to it. A
	// small-file-group member's content isn't written until the group
	// flushes at the end of the walk, which would make the hardlink race
	// its own target.
	content := bytes.Repeat([]byte("shared-hardlink-content-"), 8*1024) // ~192KiB
	if err := os.WriteFile(filepath.Join(src, "original.txt"), content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Link(filepath.Join(src, "original.txt"), filepath.Join(src, "alias.txt")); err != nil {
		t.Fatalf("Link: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "archive.fsa")
	source := Source{FSIndex: 0, Mountpoint: src, Provider: filesystem.NewDirFileSystemProvider()}
	saveOpts := option.DefaultSaveOptions()
	if err := Run(context.Background(), archivePath, 3, []Source{source}, saveOpts); err != nil {
		t.Fatalf("Run (save): %v", err)
	}

	dst := t.TempDir()
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())
	restoreOpts := option.DefaultRestoreOptions()
	restoreOpts.Destinations[0] = dst
	restoreOpts.MkfsFamily = map[int]string{0: "dir"}

	result, err := restore.Run(context.Background(), archivePath, registry, restoreOpts)
	if err != nil {
		t.Fatalf("Run (restore): %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected a clean restore, got %d errors: %+v", result.Total(), result.FSErrors)
	}

	assertFileEqual(t, filepath.Join(src, "original.txt"), filepath.Join(dst, "original.txt"))
	assertFileEqual(t, filepath.Join(dst, "original.txt"), filepath.Join(dst, "alias.txt"))

	origInfo, err := os.Stat(filepath.Join(dst, "original.txt"))
	if err != nil {
		t.Fatalf("Stat original: %v", err)
	}
	aliasInfo, err := os.Stat(filepath.Join(dst, "alias.txt"))
	if err != nil {
		t.Fatalf("Stat alias: %v", err)
	}
	if !os.SameFile(origInfo, aliasInfo) {
		t.Fatal("restored original.txt and alias.txt do not share an inode")
	}
}

// TestSaveRestoreSplitAcrossVolumes exercises §8 scenario 4's core
// split/resume property: reading a source tree back through an archive split
// across several volume files yields the same result as reading an
// unsplit one.
func TestSaveRestoreSplitAcrossVolumes(t *testing.T) {
	src := t.TempDir()
	content := bytes.Repeat([]byte("volume-split-test-content-"), 20*1024) // ~520KiB
	if err := os.WriteFile(filepath.Join(src, "spanning.bin"), content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "archive.fsa")
	source := Source{FSIndex: 0, Mountpoint: src, Provider: filesystem.NewDirFileSystemProvider()}
	saveOpts := option.DefaultSaveOptions()
	saveOpts.CompressAlgo = "none"
	saveOpts.SplitSize = 128 * 1024
	if err := Run(context.Background(), archivePath, 4, []Source{source}, saveOpts); err != nil {
		t.Fatalf("Run (save): %v", err)
	}

	if _, err := os.Stat(archivePath + ".001"); err != nil {
		t.Fatalf("expected a second volume file to exist with a small split size: %v", err)
	}

	dst := t.TempDir()
	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())
	restoreOpts := option.DefaultRestoreOptions()
	restoreOpts.Destinations[0] = dst
	restoreOpts.MkfsFamily = map[int]string{0: "dir"}

	result, err := restore.Run(context.Background(), archivePath, registry, restoreOpts)
	if err != nil {
		t.Fatalf("Run (restore): %v", err)
	}
	if result.Total() != 0 {
		t.Fatalf("expected a clean restore, got %d errors: %+v", result.Total(), result.FSErrors)
	}
	assertFileEqual(t, filepath.Join(src, "spanning.bin"), filepath.Join(dst, "spanning.bin"))
}

func assertFileEqual(t *testing.T, want, got string) {
	t.Helper()
	wantData, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", want, err)
	}
	gotData, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", got, err)
	}
	if !bytes.Equal(wantData, gotData) {
		t.Fatalf("%s and %s differ (md5 %x vs %x)", want, got, md5.Sum(wantData), md5.Sum(gotData))
	}
}
