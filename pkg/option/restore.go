package option

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/filesystem"
	"github.com/go-fsarchiver/fsarchiver/pkg/logging"
)

// RestoreOptions controls one RestoreFilesystems/RestoreDir call (§6).
type RestoreOptions struct {
	Destinations map[int]string // filesystem index -> destination device/dir
	MkfsFamily   map[int]string // filesystem index -> provider family override
	Overrides    map[int]filesystem.Overrides
	EncryptPass  string
	Progress     ProgressCallback
	Logger       *logging.Logger
}

type RestoreOption func(*RestoreOptions)

func WithDestination(fsIndex int, dest string) RestoreOption {
	return func(o *RestoreOptions) {
		if o.Destinations == nil {
			o.Destinations = make(map[int]string)
		}
		o.Destinations[fsIndex] = dest
	}
}

func WithMkfsFamily(fsIndex int, family string) RestoreOption {
	return func(o *RestoreOptions) {
		if o.MkfsFamily == nil {
			o.MkfsFamily = make(map[int]string)
		}
		o.MkfsFamily[fsIndex] = family
	}
}

func WithMkfsOverrides(fsIndex int, overrides filesystem.Overrides) RestoreOption {
	return func(o *RestoreOptions) {
		if o.Overrides == nil {
			o.Overrides = make(map[int]filesystem.Overrides)
		}
		o.Overrides[fsIndex] = overrides
	}
}

func WithDecryptPass(pass string) RestoreOption {
	return func(o *RestoreOptions) { o.EncryptPass = pass }
}

func WithRestoreProgress(callback ProgressCallback) RestoreOption {
	return func(o *RestoreOptions) { o.Progress = callback }
}

func WithRestoreLogger(logger *logging.Logger) RestoreOption {
	return func(o *RestoreOptions) { o.Logger = logger }
}

// DefaultRestoreOptions mirrors DefaultSaveOptions's silent-by-default
// stance.
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		Destinations: make(map[int]string),
		Logger:       logging.DefaultLogger(),
	}
}
