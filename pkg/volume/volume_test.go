package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadSingleVolumeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.fsa")

	w, err := Create(path, 0xC0FFEE, 2, 0, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	frameSize := 4112 * 18 // K+ecclevel = 16+2
	frames := [][]byte{make([]byte, frameSize), make([]byte, frameSize)}
	for i := range frames[0] {
		frames[0][i] = byte(i)
	}
	for i := range frames[1] {
		frames[1][i] = byte(255 - i)
	}
	for i, f := range frames {
		if err := w.WriteBlock(uint64(i), f); err != nil {
			t.Fatalf("WriteBlock(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for i, want := range frames {
		data, skipped, eof, err := r.ReadBlock(frameSize)
		if err != nil {
			t.Fatalf("ReadBlock(%d): %v", i, err)
		}
		if eof {
			t.Fatalf("unexpected eof at block %d", i)
		}
		if skipped != 0 {
			t.Fatalf("unexpected skipped bytes at block %d: %d", i, skipped)
		}
		if string(data) != string(want) {
			t.Fatalf("block %d mismatch", i)
		}
	}
	_, _, eof, err := r.ReadBlock(frameSize)
	if err != nil {
		t.Fatalf("final ReadBlock: %v", err)
	}
	if !eof {
		t.Fatal("expected eof after last block")
	}
}

func TestOverwriteRequiredWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.fsa")
	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(path, 1, 0, 0, false); err == nil {
		t.Fatal("expected error creating over an existing volume without overwrite")
	}
	if _, err := Create(path, 1, 0, 0, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func TestArchIDPinnedFromFirstVolume(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.fsa")
	w, err := Create(path, 111, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.archID != 111 {
		t.Fatalf("archID = %d, want 111", r.archID)
	}
	r.Close()
}
