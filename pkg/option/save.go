// Package option provides functional-options structs for every top-level
// operation: a plain struct of fields plus With* constructors returning
// closures over it, the same shape as an OpenOptions/CreateOptions pair.
package option

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/logging"
)

// ProgressCallback reports save/restore progress, mirroring the shape of a
// conventional ExtractionProgressCallback.
type ProgressCallback func(currentPath string, bytesTransferred, totalBytes int64, currentObject, totalObjects int)

// SaveOptions controls one SaveFilesystems/SaveDir call (§6).
type SaveOptions struct {
	EccLevel     int    // 0..16
	SplitSize    int64  // bytes, 0 disables splitting
	Overwrite    bool
	CompressJobs int    // 1..32
	CompressAlgo string // "none", "gzip", "zstd"
	CompressLevel int
	EncryptAlgo  string // "none", "aes-gcm"
	EncryptPass  string // 6..64 chars, required when EncryptAlgo != "none"
	Exclude      []string
	Progress     ProgressCallback
	Logger       *logging.Logger
}

type SaveOption func(*SaveOptions)

func WithEccLevel(level int) SaveOption {
	return func(o *SaveOptions) { o.EccLevel = level }
}

func WithSplitSize(bytes int64) SaveOption {
	return func(o *SaveOptions) { o.SplitSize = bytes }
}

func WithOverwrite(overwrite bool) SaveOption {
	return func(o *SaveOptions) { o.Overwrite = overwrite }
}

func WithCompressJobs(n int) SaveOption {
	return func(o *SaveOptions) { o.CompressJobs = n }
}

func WithCompressAlgo(name string, level int) SaveOption {
	return func(o *SaveOptions) { o.CompressAlgo = name; o.CompressLevel = level }
}

func WithEncryption(algo, pass string) SaveOption {
	return func(o *SaveOptions) { o.EncryptAlgo = algo; o.EncryptPass = pass }
}

func WithExclude(patterns ...string) SaveOption {
	return func(o *SaveOptions) { o.Exclude = append(o.Exclude, patterns...) }
}

func WithSaveProgress(callback ProgressCallback) SaveOption {
	return func(o *SaveOptions) { o.Progress = callback }
}

func WithSaveLogger(logger *logging.Logger) SaveOption {
	return func(o *SaveOptions) { o.Logger = logger }
}

// DefaultSaveOptions mirrors the distilled spec's defaults: no ECC, no
// splitting, a single compressor job running zstd at level 3.
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{
		CompressJobs:  1,
		CompressAlgo:  "zstd",
		CompressLevel: 3,
		EncryptAlgo:   "none",
		Logger:        logging.DefaultLogger(),
	}
}
