package volume

import (
	"testing"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
)

func TestVolHeadMarshalRoundTrip(t *testing.T) {
	d := Descriptor{ArchID: 42, Type: consts.VolHead, VolNum: 3, MinVer: 1, EccLevel: 4, LastVol: true}
	buf := d.Marshal()
	got, err := UnmarshalDescriptor(buf, nil)
	if err != nil {
		t.Fatalf("UnmarshalDescriptor: %v", err)
	}
	if got != d {
		t.Fatalf("got %+v want %+v", got, d)
	}
}

func TestBlockHeadMarshalRoundTrip(t *testing.T) {
	d := Descriptor{ArchID: 7, Type: consts.BlockHead, BlkNum: 9, BlkID: 1, BytesUsed: 4112 * 16}
	buf := d.Marshal()
	got, err := UnmarshalDescriptor(buf, nil)
	if err != nil {
		t.Fatalf("UnmarshalDescriptor: %v", err)
	}
	if got != d {
		t.Fatalf("got %+v want %+v", got, d)
	}
}

func TestUnmarshalRejectsTamperedChecksum(t *testing.T) {
	d := Descriptor{ArchID: 1, Type: consts.VolHead, VolNum: 0, MinVer: 1}
	buf := d.Marshal()
	buf[20] ^= 0xFF
	if _, err := UnmarshalDescriptor(buf, nil); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestUnmarshalRejectsWrongArchID(t *testing.T) {
	d := Descriptor{ArchID: 1, Type: consts.VolHead, VolNum: 0, MinVer: 1}
	buf := d.Marshal()
	want := uint32(2)
	if _, err := UnmarshalDescriptor(buf, &want); err == nil {
		t.Fatal("expected wrong archive error")
	}
}
