package option

// CreateOptions controls creating a brand-new archive (§6: the archive
// identity assigned at creation, independent of any one save run's
// EccLevel/CompressAlgo choices).
type CreateOptions struct {
	ArchID uint32 // 0 means "generate one"
}

type CreateOption func(*CreateOptions)

func WithArchID(archID uint32) CreateOption {
	return func(o *CreateOptions) {
		o.ArchID = archID
	}
}
