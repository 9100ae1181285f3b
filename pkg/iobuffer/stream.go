package iobuffer

import "io"

// Stream adapts a Buffer running in raw-byte mode to io.Writer and to the
// io.Reader+io.ByteReader pair record.Read needs, so the logical record codec
// and the volume writer/reader can share one byte pipe without either one
// knowing about the other's framing (SPEC_FULL.md §4.2, §4.5). Block payload
// bytes are read/written through the same Stream via ReadN, right after the
// BLKH metadata record, since a dictionary item cannot hold more than 64 KiB
// but a block can.
type Stream struct {
	buf *Buffer
}

// NewStream wraps buf for sequential record + raw-block access.
func NewStream(buf *Buffer) *Stream {
	return &Stream{buf: buf}
}

// Write implements io.Writer over the underlying buffer's raw-byte mode.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.buf.WriteBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read implements io.Reader, returning io.EOF once end-of-buffer is reached
// with nothing left to deliver.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, ok, err := s.buf.ReadBytes(len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if !ok {
		if n == 0 {
			return 0, io.EOF
		}
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// ReadByte implements io.ByteReader, the single-byte lookahead record.Read's
// resynchronization loop needs.
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return b[0], nil
}

// ReadN reads exactly n raw bytes (a block payload), bypassing the record
// codec. ok is false if fewer than n bytes remain before end-of-buffer.
func (s *Stream) ReadN(n int) (data []byte, ok bool, err error) {
	return s.buf.ReadBytes(n)
}

// SetEndOfBuffer signals that no more data will ever be written, letting a
// reader drain what remains and then observe end-of-stream.
func (s *Stream) SetEndOfBuffer() {
	s.buf.SetEndOfBuffer()
}
