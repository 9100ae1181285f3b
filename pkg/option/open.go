package option

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/logging"
)

// OpenOptions controls opening an existing archive for read (§6,
// archive-info/restore-fs/restore-dir/show-partition-table), named after
// the conventional OpenOptions struct for reading an ISO image.
type OpenOptions struct {
	EncryptPass string
	Logger      *logging.Logger
	// PromptMissingVolume supplies an alternate path when a volume file is
	// not found at its expected location (§4.3 Read).
	PromptMissingVolume func(expectedPath string) (string, error)
}

type OpenOption func(*OpenOptions)

func WithOpenEncryptPass(pass string) OpenOption {
	return func(o *OpenOptions) { o.EncryptPass = pass }
}

func WithOpenLogger(logger *logging.Logger) OpenOption {
	return func(o *OpenOptions) { o.Logger = logger }
}

func WithPromptMissingVolume(fn func(expectedPath string) (string, error)) OpenOption {
	return func(o *OpenOptions) { o.PromptMissingVolume = fn }
}

func DefaultOpenOptions() OpenOptions {
	return OpenOptions{Logger: logging.DefaultLogger()}
}
