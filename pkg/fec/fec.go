// Package fec implements the (K,N) forward-error-correction layer sitting
// between the logical record stream and the volume writer (SPEC_FULL.md
// §4.4): a raw payload of exactly K*4096 bytes is encoded into N packets of
// 4096 bytes such that any K of them (verified by their MD5 trailer) are
// sufficient to recover the original payload.
//
// Grounded on github.com/klauspost/reedsolomon, the same Reed-Solomon
// library _examples/other_examples/31875994_cclauss-aistore__ec-putjogger.go.go
// wires for AIStore's erasure-coded object storage — the same
// "any K of N shards reconstructs the whole" shape this frame needs.
package fec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/go-fsarchiver/fsarchiver/pkg/checksum"
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Codec encodes/decodes one FEC frame at a fixed (K, ecclevel) shape.
type Codec struct {
	ecclevel int
	n        int
	enc      reedsolomon.Encoder
}

// New builds a Codec for the given ecclevel (0..16, N = K+ecclevel).
// ecclevel=0 degenerates to "no redundancy": Encode returns the K source
// packets verbatim and Decode requires all K to be present.
func New(ecclevel int) (*Codec, error) {
	if ecclevel < 0 || ecclevel > consts.FECMaxParityPackets {
		return nil, errs.New(errs.InvalidArg, "ecclevel out of range")
	}
	n := consts.FECSourcePackets + ecclevel
	c := &Codec{ecclevel: ecclevel, n: n}
	if ecclevel > 0 {
		enc, err := reedsolomon.New(consts.FECSourcePackets, ecclevel)
		if err != nil {
			return nil, errs.Wrap(errs.Unknown, "construct reed-solomon encoder", err)
		}
		c.enc = enc
	}
	return c, nil
}

// N returns the total packet count for this codec's ecclevel.
func (c *Codec) N() int {
	return c.n
}

// Packet is one on-the-wire FEC packet: 4096 bytes of payload plus its
// 16-byte MD5 trailer (§6).
type Packet struct {
	Data [consts.FECPacketSize]byte
	Sum  [16]byte
}

// Verify reports whether the packet's stored MD5 matches its payload.
func (p *Packet) Verify() bool {
	return checksum.MD5Equal(checksum.MD5Sum(p.Data[:]), p.Sum)
}

// Marshal serializes a packet to its stored 4112-byte form.
func (p *Packet) Marshal() []byte {
	out := make([]byte, consts.FECStoredPacketSize)
	copy(out, p.Data[:])
	copy(out[consts.FECPacketSize:], p.Sum[:])
	return out
}

// UnmarshalPacket parses a stored 4112-byte packet.
func UnmarshalPacket(buf []byte) (Packet, error) {
	if len(buf) != consts.FECStoredPacketSize {
		return Packet{}, errs.New(errs.Corrupt, "packet has wrong stored size")
	}
	var p Packet
	copy(p.Data[:], buf[:consts.FECPacketSize])
	copy(p.Sum[:], buf[consts.FECPacketSize:])
	return p, nil
}

// Encode takes exactly K*4096 raw bytes and returns N packets, each MD5'd.
func (c *Codec) Encode(raw []byte) ([]Packet, error) {
	if len(raw) != consts.FECFrameRawSize {
		return nil, errs.New(errs.InvalidArg, "raw frame must be exactly K*4096 bytes")
	}
	shards := make([][]byte, c.n)
	for i := 0; i < consts.FECSourcePackets; i++ {
		shards[i] = raw[i*consts.FECPacketSize : (i+1)*consts.FECPacketSize]
	}
	for i := consts.FECSourcePackets; i < c.n; i++ {
		shards[i] = make([]byte, consts.FECPacketSize)
	}
	if c.ecclevel > 0 {
		if err := c.enc.Encode(shards); err != nil {
			return nil, errs.Wrap(errs.Unknown, "reed-solomon encode", err)
		}
	}
	packets := make([]Packet, c.n)
	for i, shard := range shards {
		copy(packets[i].Data[:], shard)
		packets[i].Sum = checksum.MD5Sum(packets[i].Data[:])
	}
	return packets, nil
}

// MarshalFrame concatenates N packets into their back-to-back stored form
// for the volume writer (§6 "FEC frame: N packets back to back").
func MarshalFrame(packets []Packet) []byte {
	out := make([]byte, 0, len(packets)*consts.FECStoredPacketSize)
	for i := range packets {
		out = append(out, packets[i].Marshal()...)
	}
	return out
}

// UnmarshalFrame splits a volume's stored frame bytes back into n packets.
func UnmarshalFrame(buf []byte, n int) ([]Packet, error) {
	if len(buf) != n*consts.FECStoredPacketSize {
		return nil, errs.New(errs.Corrupt, "fec frame has wrong stored size")
	}
	packets := make([]Packet, n)
	for i := 0; i < n; i++ {
		p, err := UnmarshalPacket(buf[i*consts.FECStoredPacketSize : (i+1)*consts.FECStoredPacketSize])
		if err != nil {
			return nil, err
		}
		packets[i] = p
	}
	return packets, nil
}

// Decode reconstructs the original K*4096-byte payload from a slice of N
// packets, some of which may be absent (present[i] false treated as unseen) or
// tampered (MD5 mismatch). Packets whose MD5 does not verify are treated as
// erased, exactly like a volume-layer dropout. If fewer than K packets
// verify, the frame is unrecoverable and that is reported to the caller
// (§4.4 failure policy); for ecclevel=0, every one of the K source packets
// must verify since there is no redundancy to reconstruct from.
func (c *Codec) Decode(packets []Packet, present []bool) ([]byte, int, error) {
	if len(packets) != c.n || len(present) != c.n {
		return nil, 0, errs.New(errs.InvalidArg, "packet slice has wrong length for this codec's N")
	}
	shards := make([][]byte, c.n)
	good := 0
	for i := range packets {
		if present[i] && packets[i].Verify() {
			buf := make([]byte, consts.FECPacketSize)
			copy(buf, packets[i].Data[:])
			shards[i] = buf
			good++
		}
	}
	if good < consts.FECSourcePackets {
		return nil, good, errs.New(errs.Corrupt, "fewer than K verified packets, frame unrecoverable")
	}

	// When ecclevel is 0, N == K, so good < c.n already failed the check
	// above; reaching here with ecclevel > 0 means some shard needs
	// reconstructing from the others.
	if good < c.n && c.ecclevel > 0 {
		if err := c.enc.Reconstruct(shards); err != nil {
			return nil, good, errs.Wrap(errs.Corrupt, "reed-solomon reconstruct", err)
		}
	}

	out := make([]byte, 0, consts.FECFrameRawSize)
	for i := 0; i < consts.FECSourcePackets; i++ {
		if shards[i] == nil {
			return nil, good, errs.New(errs.Corrupt, "source shard missing after reconstruct")
		}
		out = append(out, shards[i]...)
	}
	return out, good, nil
}
