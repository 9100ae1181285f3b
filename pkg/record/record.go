// Package record implements the logical record codec (SPEC_FULL.md §4.2): a
// fixed-layout header framed by two magics, followed by a serialized
// dictionary whose checksum the header carries. Mirrors a header+body
// descriptor split, generalized from a fixed ISO9660 volume descriptor to a
// variable-length, self-resynchronizing stream record.
package record

import (
	"encoding/binary"
	"io"

	"github.com/go-fsarchiver/fsarchiver/pkg/checksum"
	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Record is one logical record: a header plus the dictionary it carries.
type Record struct {
	HeadType consts.HeadType
	FSIndex  uint16
	Dico     *dictionary.Dictionary
}

// Write serializes dico as a logical record and writes it to w (§4.2,
// write_record).
func Write(w io.Writer, dico *dictionary.Dictionary, headType consts.HeadType, fsIndex uint16) error {
	payload, err := dico.Marshal()
	if err != nil {
		return errs.Wrap(errs.Write, "marshal dictionary", err)
	}
	if len(payload) > 0xFFFFFFFF {
		return errs.New(errs.InvalidArg, "dictionary payload too large")
	}
	sum := checksum.Fletcher32(payload)

	header := make([]byte, consts.RecordHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], consts.RecordMagic1)
	binary.LittleEndian.PutUint32(header[4:8], uint32(headType))
	binary.LittleEndian.PutUint16(header[8:10], fsIndex)
	binary.LittleEndian.PutUint16(header[10:12], uint16(dico.CountAll()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[16:20], sum)
	binary.LittleEndian.PutUint32(header[20:24], consts.RecordMagic2)

	if _, err := w.Write(header); err != nil {
		return errs.Wrap(errs.Write, "write record header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errs.Wrap(errs.Write, "write record payload", err)
	}
	return nil
}

// ReadResult is returned by Read: either a valid record, or a signal that
// end-of-stream was reached, plus the number of bytes the reader had to
// skip while resynchronizing (§4.2, §8 "Resynchronization").
type ReadResult struct {
	Record     Record
	EOF        bool
	Skipped    int
}

// byteReader is the minimal interface Read needs: a single-byte lookahead
// so the resync loop can slide forward without re-reading already-consumed
// bytes from an underlying stream.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// Read scans r for the next valid logical record. On a bad magic it slides
// forward one byte at a time (single-byte rolling resynchronization, §4.2).
// On a dictionary checksum failure, or a payload that does not decode, the
// whole record (header and payload) is discarded and the resynchronization
// loop resumes at the byte just past its payload. Returns
// ReadResult.EOF=true once the underlying reader is exhausted; a trailing
// partial header or payload is dropped and reported the same way.
func Read(r byteReader) (ReadResult, error) {
	var skipped int
	header := make([]byte, consts.RecordHeaderSize)
	haveHeader := false

	for {
		if !haveHeader {
			if _, err := io.ReadFull(r, header); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return ReadResult{EOF: true, Skipped: skipped}, nil
				}
				return ReadResult{}, errs.Wrap(errs.Read, "read record header", err)
			}
		}
		haveHeader = false

		magic1 := binary.LittleEndian.Uint32(header[0:4])
		magic2 := binary.LittleEndian.Uint32(header[20:24])
		if magic1 != consts.RecordMagic1 || magic2 != consts.RecordMagic2 {
			// Slide one byte: drop header[0] and read one more byte into
			// the tail, then retry the magic check.
			copy(header, header[1:])
			b, err := r.ReadByte()
			if err != nil {
				return ReadResult{EOF: true, Skipped: skipped + consts.RecordHeaderSize - 1}, nil
			}
			header[consts.RecordHeaderSize-1] = b
			skipped++
			haveHeader = true
			continue
		}

		headType := consts.HeadType(binary.LittleEndian.Uint32(header[4:8]))
		fsIndex := binary.LittleEndian.Uint16(header[8:10])
		dicoLen := binary.LittleEndian.Uint32(header[12:16])
		dicoSum := binary.LittleEndian.Uint32(header[16:20])

		payload := make([]byte, dicoLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ReadResult{EOF: true, Skipped: skipped}, nil
			}
			return ReadResult{}, errs.Wrap(errs.Read, "read record payload", err)
		}

		if checksum.Fletcher32(payload) != dicoSum {
			// Checksum failure: discard this record, header and payload
			// both, and restart the byte-by-byte magic search at the byte
			// just past its payload. The payload bytes are not rescanned.
			skipped += consts.RecordHeaderSize + len(payload)
			continue
		}

		dico, err := dictionary.Unmarshal(payload)
		if err != nil {
			skipped += consts.RecordHeaderSize + len(payload)
			continue
		}

		return ReadResult{
			Record: Record{HeadType: headType, FSIndex: fsIndex, Dico: dico},
			Skipped: skipped,
		}, nil
	}
}
