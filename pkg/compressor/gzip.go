package compressor

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// GzipCodec wraps the standard library's gzip implementation. Kept on
// compress/gzip rather than a third-party gzip variant (e.g. pgzip) because
// pgzip's value proposition is parallelizing a single gzip stream, which
// this format doesn't need: the compressor pool (§4.7) already parallelizes
// across blocks, one goroutine per block, each block compressed serially.
type GzipCodec struct{}

func NewGzipCodec() *GzipCodec { return &GzipCodec{} }

func (*GzipCodec) ID() byte     { return AlgoGzip }
func (*GzipCodec) Name() string { return "gzip" }

func (*GzipCodec) Compress(data []byte, level int) ([]byte, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "construct gzip writer", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, errs.Wrap(errs.Write, "gzip compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.Write, "close gzip writer", err)
	}
	return buf.Bytes(), nil
}

func (*GzipCodec) Decompress(data []byte, realSize int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "construct gzip reader", err)
	}
	defer r.Close()
	out := make([]byte, 0, realSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, errs.Wrap(errs.Corrupt, "gzip decompress", err)
	}
	return buf.Bytes(), nil
}
