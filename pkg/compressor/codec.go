// Package compressor implements the pluggable compression codecs (§6,
// EncryptAlgo's sibling CompressAlgo) and the fixed-size worker pool that
// runs them over queued data blocks (§4.7). The worker pool generalizes
// "goroutines coordinated by a shared mutable structure" to "goroutines
// claiming queue items", using golang.org/x/sync/errgroup the way a
// parallel package-builder pipeline coordinates its own workers.
package compressor

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Algorithm ids stored in a data block header (§3).
const (
	AlgoNone byte = iota
	AlgoGzip
	AlgoZstd
)

// Codec compresses/decompresses one data block's payload. Level is
// algorithm-specific; codecs that don't support levels ignore it.
type Codec interface {
	ID() byte
	Name() string
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte, realSize int) ([]byte, error)
}

// Registry resolves a codec by its on-disk algorithm id.
type Registry struct {
	codecs map[byte]Codec
}

// NewRegistry builds a Registry pre-populated with the built-in codecs
// (none, gzip, zstd). Callers may Register additional pluggable codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[byte]Codec)}
	r.Register(NoneCodec{})
	r.Register(NewGzipCodec())
	r.Register(NewZstdCodec())
	return r
}

// Register adds or replaces a codec under its own ID().
func (r *Registry) Register(c Codec) {
	r.codecs[c.ID()] = c
}

// Get resolves a codec by id.
func (r *Registry) Get(id byte) (Codec, error) {
	c, ok := r.codecs[id]
	if !ok {
		return nil, errs.New(errs.InvalidArg, "unknown compression algorithm id")
	}
	return c, nil
}

// ByName resolves a codec by its human-readable name ("none", "gzip",
// "zstd"), used to parse the CompressAlgo option.
func (r *Registry) ByName(name string) (Codec, error) {
	for _, c := range r.codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, errs.New(errs.InvalidArg, "unknown compression algorithm name: "+name)
}
