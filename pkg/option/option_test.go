package option

import "testing"

func TestSaveOptionsApply(t *testing.T) {
	o := DefaultSaveOptions()
	for _, apply := range []SaveOption{
		WithEccLevel(4),
		WithSplitSize(1 << 20),
		WithOverwrite(true),
		WithCompressJobs(8),
		WithCompressAlgo("gzip", 6),
		WithEncryption("aes-gcm", "correct horse battery staple"),
		WithExclude("*.tmp", "*.swp"),
	} {
		apply(&o)
	}
	if o.EccLevel != 4 || o.SplitSize != 1<<20 || !o.Overwrite {
		t.Fatalf("unexpected options: %+v", o)
	}
	if o.CompressJobs != 8 || o.CompressAlgo != "gzip" || o.CompressLevel != 6 {
		t.Fatalf("unexpected compression options: %+v", o)
	}
	if o.EncryptAlgo != "aes-gcm" || o.EncryptPass == "" {
		t.Fatalf("unexpected encryption options: %+v", o)
	}
	if len(o.Exclude) != 2 {
		t.Fatalf("unexpected exclude patterns: %+v", o.Exclude)
	}
}

func TestRestoreOptionsApply(t *testing.T) {
	o := DefaultRestoreOptions()
	WithDestination(0, "/tmp/dest")(&o)
	WithMkfsFamily(0, "dir")(&o)
	WithDecryptPass("secret")(&o)
	if o.Destinations[0] != "/tmp/dest" || o.MkfsFamily[0] != "dir" || o.EncryptPass != "secret" {
		t.Fatalf("unexpected restore options: %+v", o)
	}
}

func TestOpenOptionsApply(t *testing.T) {
	o := DefaultOpenOptions()
	WithOpenEncryptPass("secret")(&o)
	prompted := false
	WithPromptMissingVolume(func(expected string) (string, error) {
		prompted = true
		return expected, nil
	})(&o)
	if o.EncryptPass != "secret" {
		t.Fatal("expected encrypt pass to be set")
	}
	if _, err := o.PromptMissingVolume("archive.fsa.002"); err != nil || !prompted {
		t.Fatal("expected prompt callback to be invoked")
	}
}
