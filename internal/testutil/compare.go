package testutil

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
)

// FileMD5 hashes one file's contents, used to assert the round-trip
// property in SPEC_FULL.md §8: restore(save(fs)) content MD5s match.
func FileMD5(path string) ([16]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [16]byte{}, err
	}
	return md5.Sum(data), nil
}

// CompareTrees asserts that every regular file under want also exists under
// got with an identical MD5, and that the same set of relative paths is
// present in both (§8 Round-trip).
func CompareTrees(want, got string) error {
	wantPaths, err := RelPaths(want)
	if err != nil {
		return err
	}
	gotPaths, err := RelPaths(got)
	if err != nil {
		return err
	}
	if len(wantPaths) != len(gotPaths) {
		return fmt.Errorf("path count mismatch: want %d got %d", len(wantPaths), len(gotPaths))
	}
	for i, p := range wantPaths {
		if gotPaths[i] != p {
			return fmt.Errorf("path set mismatch at index %d: want %q got %q", i, p, gotPaths[i])
		}
	}

	for _, rel := range wantPaths {
		wantPath := filepath.Join(want, rel)
		gotPath := filepath.Join(got, rel)
		wantInfo, err := os.Lstat(wantPath)
		if err != nil {
			return err
		}
		if wantInfo.IsDir() || wantInfo.Mode()&os.ModeSymlink != 0 {
			continue
		}
		wantSum, err := FileMD5(wantPath)
		if err != nil {
			return err
		}
		gotSum, err := FileMD5(gotPath)
		if err != nil {
			return fmt.Errorf("reading restored file %q: %w", rel, err)
		}
		if wantSum != gotSum {
			return fmt.Errorf("content mismatch for %q", rel)
		}
	}
	return nil
}
