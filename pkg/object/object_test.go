package object

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
)

// TestRegularUniqueRoundTrip covers a large-file object: its MD5 is not yet
// known when the OBJT record is written, so ToDictionary/FromDictionary must
// not carry one — it travels separately in the HeadFileFooter record (see
// TestFooterRoundTrip).
func TestRegularUniqueRoundTrip(t *testing.T) {
	e := &Entry{
		Path:  "dir/a",
		Type:  TypeRegularUnique,
		Mode:  0644,
		UID:   1000,
		GID:   1000,
		Mtime: time.Unix(1700000000, 123).UTC(),
		Xattrs: []Xattr{
			{Name: "user.comment", Value: []byte("hello")},
		},
		Size: 8,
	}
	got, err := FromDictionary(e.ToDictionary())
	if err != nil {
		t.Fatalf("FromDictionary: %v", err)
	}
	if got.Path != e.Path || got.Type != e.Type || got.Mode != e.Mode {
		t.Fatalf("common fields mismatch: %+v", got)
	}
	if got.Size != e.Size {
		t.Fatalf("file fields mismatch: %+v", got)
	}
	if got.MD5 != ([16]byte{}) {
		t.Fatalf("large-file object must not carry an md5: got %+v", got.MD5)
	}
	if got.Sparse {
		t.Fatalf("sparse flag must not be set from an OBJT record")
	}
	if !got.Mtime.Equal(e.Mtime) {
		t.Fatalf("mtime mismatch: got %v want %v", got.Mtime, e.Mtime)
	}
	if len(got.Xattrs) != 1 || got.Xattrs[0].Name != "user.comment" || string(got.Xattrs[0].Value) != "hello" {
		t.Fatalf("xattrs mismatch: %+v", got.Xattrs)
	}
}

// TestRegularMultiRoundTrip covers a small-file-group member: its content is
// buffered upfront by the packer, so its MD5 and group placement are known
// at OBJT-write time and must round-trip through the dictionary directly.
func TestRegularMultiRoundTrip(t *testing.T) {
	e := &Entry{
		Path:        "dir/b",
		Type:        TypeRegularMulti,
		Mode:        0644,
		Size:        40,
		MD5:         [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		GroupCount:  3,
		GroupOffset: 128,
	}
	got, err := FromDictionary(e.ToDictionary())
	if err != nil {
		t.Fatalf("FromDictionary: %v", err)
	}
	if got.MD5 != e.MD5 {
		t.Fatalf("md5 mismatch: got %+v want %+v", got.MD5, e.MD5)
	}
	if got.GroupCount != e.GroupCount || got.GroupOffset != e.GroupOffset {
		t.Fatalf("group placement mismatch: got count=%d offset=%d", got.GroupCount, got.GroupOffset)
	}
}

// TestDirRoundTripDeepEqual covers a directory entry carrying multiple
// xattrs, comparing the whole restored Entry against the original with
// go-cmp rather than field-by-field, since a dropped or reordered xattr
// would otherwise slip past a handwritten check.
func TestDirRoundTripDeepEqual(t *testing.T) {
	e := &Entry{
		Path:  "dir/with-xattrs",
		Type:  TypeDir,
		Mode:  0755,
		UID:   0,
		GID:   0,
		Mtime: time.Unix(1700000001, 0).UTC(),
		Xattrs: []Xattr{
			{Name: "user.a", Value: []byte("1")},
			{Name: "user.b", Value: []byte("2")},
		},
	}
	got, err := FromDictionary(e.ToDictionary())
	if err != nil {
		t.Fatalf("FromDictionary: %v", err)
	}
	if diff := cmp.Diff(e, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRegularMultiMissingMD5Rejected(t *testing.T) {
	d := dictionary.New()
	d.AddString(SectionCommon, uint16(KeyPath), "dir/c")
	d.AddU8(SectionCommon, uint16(KeyType), byte(TypeRegularMulti))
	d.AddU32(SectionCommon, uint16(KeyMode), 0644)
	d.AddU64(SectionFile, uint16(KeyFileSize), 10)
	if _, err := FromDictionary(d); err == nil {
		t.Fatal("expected error for small-file object missing md5")
	}
}

func TestFooterRoundTrip(t *testing.T) {
	md5 := [16]byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 1, 2, 3, 4, 5, 6}
	d := FooterDictionary(md5, true)
	gotMD5, gotSparse, err := FooterMD5FromDictionary(d)
	if err != nil {
		t.Fatalf("FooterMD5FromDictionary: %v", err)
	}
	if gotMD5 != md5 || !gotSparse {
		t.Fatalf("footer mismatch: md5=%+v sparse=%v", gotMD5, gotSparse)
	}
}

func TestFooterRoundTripNotSparse(t *testing.T) {
	md5 := [16]byte{1}
	d := FooterDictionary(md5, false)
	_, gotSparse, err := FooterMD5FromDictionary(d)
	if err != nil {
		t.Fatalf("FooterMD5FromDictionary: %v", err)
	}
	if gotSparse {
		t.Fatal("expected sparse=false")
	}
}

func TestSymlinkRoundTrip(t *testing.T) {
	e := &Entry{
		Path:           "dir/b",
		Type:           TypeSymlink,
		Mode:           os.ModeSymlink | 0777,
		LinkTarget:     "a",
		LinkTargetType: LinkTargetNative,
	}
	got, err := FromDictionary(e.ToDictionary())
	if err != nil {
		t.Fatalf("FromDictionary: %v", err)
	}
	if got.LinkTarget != "a" || got.LinkTargetType != LinkTargetNative {
		t.Fatalf("symlink fields mismatch: %+v", got)
	}
}

func TestDeviceRoundTrip(t *testing.T) {
	e := &Entry{Path: "dev/null", Type: TypeDevice, DevMajor: 1, DevMinor: 3}
	got, err := FromDictionary(e.ToDictionary())
	if err != nil {
		t.Fatalf("FromDictionary: %v", err)
	}
	if got.DevMajor != 1 || got.DevMinor != 3 {
		t.Fatalf("device fields mismatch: %+v", got)
	}
}

func TestMissingPathRejected(t *testing.T) {
	d := dictionary.New()
	d.AddU8(SectionCommon, uint16(KeyType), byte(TypeDir))
	if _, err := FromDictionary(d); err == nil {
		t.Fatal("expected error for missing path")
	}
}
