package compressor

import (
	"github.com/klauspost/compress/zstd"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// ZstdCodec wraps github.com/klauspost/compress's zstd implementation, the
// default compression algorithm. Grounded on _examples/distr1-distri, which
// requires both klauspost/compress and klauspost/pgzip for its package
// build artifacts.
type ZstdCodec struct{}

func NewZstdCodec() *ZstdCodec { return &ZstdCodec{} }

func (*ZstdCodec) ID() byte     { return AlgoZstd }
func (*ZstdCodec) Name() string { return "zstd" }

func (*ZstdCodec) Compress(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "construct zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (*ZstdCodec) Decompress(data []byte, realSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, "construct zstd decoder", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, realSize))
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, "zstd decompress", err)
	}
	return out, nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
