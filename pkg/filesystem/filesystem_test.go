package filesystem

import "testing"

func TestInfoDictionaryRoundTrip(t *testing.T) {
	i := Info{
		Family:         "dir",
		Label:          "data",
		UUID:           "11111111-1111-1111-1111-111111111111",
		BytesTotal:     1 << 30,
		BytesUsed:      1 << 20,
		BlockSize:      4096,
		SectorSize:     512,
		ClusterSize:    4096,
		FeatureFlags:   []string{"sparse", "xattr"},
		OriginalDevice: "/dev/fake0",
		MountOptions:   []string{"ro", "noatime"},
	}
	got, err := InfoFromDictionary(i.ToDictionary())
	if err != nil {
		t.Fatalf("InfoFromDictionary: %v", err)
	}
	if got.Family != i.Family || got.Label != i.Label || got.UUID != i.UUID {
		t.Fatalf("identity fields mismatch: %+v", got)
	}
	if got.BytesTotal != i.BytesTotal || got.BytesUsed != i.BytesUsed {
		t.Fatalf("usage fields mismatch: %+v", got)
	}
	if len(got.FeatureFlags) != 2 || got.FeatureFlags[0] != "sparse" {
		t.Fatalf("feature flags mismatch: %+v", got.FeatureFlags)
	}
	if len(got.MountOptions) != 2 || got.MountOptions[1] != "noatime" {
		t.Fatalf("mount options mismatch: %+v", got.MountOptions)
	}
}

func TestRegistryResolvesDirProvider(t *testing.T) {
	r := NewRegistry()
	p, err := r.Get("dir")
	if err != nil {
		t.Fatalf("Get(dir): %v", err)
	}
	if p.Family() != "dir" {
		t.Fatalf("Family() = %q, want dir", p.Family())
	}
}

func TestRegistryUnknownFamily(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("zfs"); err == nil {
		t.Fatal("expected error for unregistered family")
	}
}

func TestDirProviderProbeAndMkfs(t *testing.T) {
	dir := t.TempDir()
	p := NewDirFileSystemProvider()
	info, err := p.Probe(dir)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.BlockSize == 0 {
		t.Fatal("expected non-zero block size from statfs")
	}
	dest := dir + "/restored"
	if err := p.Mkfs(dest, info, Overrides{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	if err := p.Mount(dest, dest, nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := p.Umount(dest); err != nil {
		t.Fatalf("Umount: %v", err)
	}
}
