package dictionary

import "testing"

func TestRoundTripTypedItems(t *testing.T) {
	d := New()
	d.AddString(1, 10, "hello")
	d.AddU8(1, 11, 0xAB)
	d.AddU16(1, 12, 0x1234)
	d.AddU32(1, 13, 0xDEADBEEF)
	d.AddU64(1, 14, 0x0102030405060708)
	d.AddBytes(2, 20, []byte{1, 2, 3})

	buf, err := d.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CountAll() != 6 {
		t.Fatalf("expected 6 items, got %d", got.CountAll())
	}

	s, ok := got.GetString(1, 10)
	if !ok || s != "hello" {
		t.Fatalf("GetString: got %q, ok=%v", s, ok)
	}
	u8, err := got.GetU8(1, 11)
	if err != nil || u8 != 0xAB {
		t.Fatalf("GetU8: got %v, err=%v", u8, err)
	}
	u16, err := got.GetU16(1, 12)
	if err != nil || u16 != 0x1234 {
		t.Fatalf("GetU16: got %v, err=%v", u16, err)
	}
	u32, err := got.GetU32(1, 13)
	if err != nil || u32 != 0xDEADBEEF {
		t.Fatalf("GetU32: got %v, err=%v", u32, err)
	}
	u64, err := got.GetU64(1, 14)
	if err != nil || u64 != 0x0102030405060708 {
		t.Fatalf("GetU64: got %v, err=%v", u64, err)
	}
	b, ok := got.GetBytes(2, 20)
	if !ok || len(b) != 3 || b[0] != 1 || b[2] != 3 {
		t.Fatalf("GetBytes: got %v, ok=%v", b, ok)
	}
}

func TestDuplicateKeysPreserveOrder(t *testing.T) {
	d := New()
	d.AddString(3, 1, "a")
	d.AddString(3, 1, "b")
	d.AddString(3, 1, "c")

	buf, err := d.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	all := got.GetAll(3, 1)
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	want := []string{"a", "b", "c"}
	for i, it := range all {
		if string(it.Value) != want[i] {
			t.Fatalf("item %d = %q, want %q", i, it.Value, want[i])
		}
	}
}

func TestWrongWidthRejected(t *testing.T) {
	// Hand-craft a buffer claiming a u32 item with a 2-byte value.
	buf := []byte{
		1, 0, // item count = 1
		byte(TypeU32), 0, 0, 0, 2, 0, // type=u32 section=0 key=0 size=2
		0xAA, 0xBB,
	}
	if _, err := Unmarshal(buf); err == nil {
		t.Fatalf("expected error for mismatched width")
	}
}

func TestTruncatedBufferRejected(t *testing.T) {
	buf := []byte{1, 0, byte(TypeBytes), 0, 0, 0, 5, 0, 'h', 'i'}
	if _, err := Unmarshal(buf); err == nil {
		t.Fatalf("expected error for truncated item value")
	}
}

func TestGetUnknownTypeReturnsNotFound(t *testing.T) {
	d := New()
	if _, err := d.GetU32(9, 9); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestCountSection(t *testing.T) {
	d := New()
	d.AddString(1, 1, "x")
	d.AddString(1, 2, "y")
	d.AddString(2, 1, "z")
	if got := d.CountSection(1); got != 2 {
		t.Fatalf("CountSection(1) = %d, want 2", got)
	}
	if got := d.CountAll(); got != 3 {
		t.Fatalf("CountAll() = %d, want 3", got)
	}
}
