package testutil

import (
	"path/filepath"
	"testing"
)

func TestBuildAndCount(t *testing.T) {
	root := t.TempDir()
	tree := Tree{
		Dirs:  []DirSpec{{Path: "d"}},
		Files: []FileSpec{{Path: "d/a", Content: []byte("hello\n")}},
		Symlinks: []SymlinkSpec{
			{Path: "d/b", Target: "a"},
		},
	}
	if err := Build(root, tree); err != nil {
		t.Fatalf("Build: %v", err)
	}
	counts, err := Count(root)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if counts.Dirs != 1 || counts.Files != 1 || counts.Symlinks != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCompareTreesDetectsMismatch(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	tree := Tree{Files: []FileSpec{{Path: "a", Content: []byte("one")}}}
	if err := Build(src, tree); err != nil {
		t.Fatal(err)
	}
	if err := Build(dst, Tree{Files: []FileSpec{{Path: "a", Content: []byte("two")}}}); err != nil {
		t.Fatal(err)
	}
	if err := CompareTrees(src, dst); err == nil {
		t.Fatal("expected content mismatch to be detected")
	}
}

func TestCompareTreesAcceptsIdenticalTrees(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	tree := Tree{
		Dirs:  []DirSpec{{Path: "d"}},
		Files: []FileSpec{{Path: "d/a", Content: []byte("hello\n")}},
	}
	if err := Build(src, tree); err != nil {
		t.Fatal(err)
	}
	if err := Build(dst, tree); err != nil {
		t.Fatal(err)
	}
	if err := CompareTrees(src, dst); err != nil {
		t.Fatalf("expected identical trees to compare equal: %v", err)
	}
	if _, err := FileMD5(filepath.Join(src, "d/a")); err != nil {
		t.Fatalf("FileMD5: %v", err)
	}
}
