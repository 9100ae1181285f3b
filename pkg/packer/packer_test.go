package packer

import "testing"

func TestAddAndFlushRoundTrip(t *testing.T) {
	p := New(512, 64*1024)
	files := map[string][]byte{
		"a": []byte("hello\n"),
		"b": []byte("world\n\x00\x00"),
		"c": []byte("x"),
	}
	order := []string{"a", "b", "c"}
	for _, name := range order {
		if p.WouldOverflow(len(files[name])) {
			t.Fatalf("unexpected overflow for %q", name)
		}
		if err := p.Add(name, files[name]); err != nil {
			t.Fatalf("Add(%q): %v", name, err)
		}
	}
	if p.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", p.Count())
	}

	block, members := p.Flush()
	if !p.Empty() {
		t.Fatal("packer should be empty after Flush")
	}
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	for i, name := range order {
		got, err := Slice(block, members[i])
		if err != nil {
			t.Fatalf("Slice(%q): %v", name, err)
		}
		if string(got) != string(files[name]) {
			t.Fatalf("member %q mismatch: got %q want %q", name, got, files[name])
		}
	}
}

func TestWouldOverflowOnCount(t *testing.T) {
	p := New(2, 64*1024)
	if err := p.Add("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := p.Add("b", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if !p.WouldOverflow(1) {
		t.Fatal("expected overflow once count limit reached")
	}
}

func TestWouldOverflowOnSize(t *testing.T) {
	p := New(512, 8)
	if err := p.Add("a", []byte("1234")); err != nil {
		t.Fatal(err)
	}
	if !p.WouldOverflow(5) {
		t.Fatal("expected overflow once size limit would be exceeded")
	}
	if p.WouldOverflow(4) {
		t.Fatal("did not expect overflow within size limit")
	}
}

func TestSliceRejectsOutOfBounds(t *testing.T) {
	block := []byte("hello")
	if _, err := Slice(block, Member{Offset: 3, Size: 10}); err == nil {
		t.Fatal("expected error for out-of-bounds member")
	}
}
