// Package filesystem defines the pluggable collaborator contract between
// the save/restore drivers and whatever backs a "filesystem" being archived
// (SPEC_FULL.md §6, §9: "tagged variant plus dispatch table" realized as a
// Go interface plus a name-keyed registry, the same shape as a
// family-keyed dispatch table over image types).
package filesystem

import (
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Info is the per-filesystem metadata populated by Probe and carried in the
// FS-info record (§4.8 step 2): label, UUID, usage, block/sector/cluster
// sizes, feature flags, original device, and the mount options the
// restorer must recreate.
type Info struct {
	Family        string
	Label         string
	UUID          string
	BytesTotal    uint64
	BytesUsed     uint64
	BlockSize     uint32
	SectorSize    uint32
	ClusterSize   uint32
	FeatureFlags  []string
	OriginalDevice string
	MountOptions  []string
}

// InfoSection is the sole dictionary section used by an FS-info record.
const InfoSection byte = 0

// Dictionary keys within InfoSection.
const (
	KeyFamily uint16 = iota
	KeyLabel
	KeyUUID
	KeyBytesTotal
	KeyBytesUsed
	KeyBlockSize
	KeySectorSize
	KeyClusterSize
	KeyFeatureFlag // repeatable
	KeyOriginalDevice
	KeyMountOption // repeatable
)

// ToDictionary serializes Info into the dictionary carried by a HeadFSInfo
// record.
func (i Info) ToDictionary() *dictionary.Dictionary {
	d := dictionary.New()
	d.AddString(InfoSection, KeyFamily, i.Family)
	d.AddString(InfoSection, KeyLabel, i.Label)
	d.AddString(InfoSection, KeyUUID, i.UUID)
	d.AddU64(InfoSection, KeyBytesTotal, i.BytesTotal)
	d.AddU64(InfoSection, KeyBytesUsed, i.BytesUsed)
	d.AddU32(InfoSection, KeyBlockSize, i.BlockSize)
	d.AddU32(InfoSection, KeySectorSize, i.SectorSize)
	d.AddU32(InfoSection, KeyClusterSize, i.ClusterSize)
	for _, flag := range i.FeatureFlags {
		d.AddString(InfoSection, KeyFeatureFlag, flag)
	}
	d.AddString(InfoSection, KeyOriginalDevice, i.OriginalDevice)
	for _, opt := range i.MountOptions {
		d.AddString(InfoSection, KeyMountOption, opt)
	}
	return d
}

// InfoFromDictionary rebuilds Info from a decoded HeadFSInfo record.
func InfoFromDictionary(d *dictionary.Dictionary) (Info, error) {
	var i Info
	var ok bool
	if i.Family, ok = d.GetString(InfoSection, KeyFamily); !ok {
		return i, errs.New(errs.Corrupt, "fs-info record missing family")
	}
	i.Label, _ = d.GetString(InfoSection, KeyLabel)
	i.UUID, _ = d.GetString(InfoSection, KeyUUID)
	i.BytesTotal, _ = d.GetU64(InfoSection, KeyBytesTotal)
	i.BytesUsed, _ = d.GetU64(InfoSection, KeyBytesUsed)
	if v, err := d.GetU32(InfoSection, KeyBlockSize); err == nil {
		i.BlockSize = v
	}
	if v, err := d.GetU32(InfoSection, KeySectorSize); err == nil {
		i.SectorSize = v
	}
	if v, err := d.GetU32(InfoSection, KeyClusterSize); err == nil {
		i.ClusterSize = v
	}
	for _, item := range d.GetAll(InfoSection, KeyFeatureFlag) {
		i.FeatureFlags = append(i.FeatureFlags, string(item.Value))
	}
	i.OriginalDevice, _ = d.GetString(InfoSection, KeyOriginalDevice)
	for _, item := range d.GetAll(InfoSection, KeyMountOption) {
		i.MountOptions = append(i.MountOptions, string(item.Value))
	}
	return i, nil
}

// Overrides carries user-specified parameters for mkfs on restore (§4.9
// step "Invoke mkfs... with parameters reconstructed from FS-info and user
// overrides").
type Overrides struct {
	Label   string
	UUID    string
	Options map[string]string
}

// Provider is the pluggable collaborator one filesystem family (ext4, xfs,
// btrfs, a plain directory, ...) implements so the save/restore drivers
// never depend on host mount/mkfs syscalls directly (§1 Out of scope, §9).
type Provider interface {
	// Family returns the name this provider is registered under.
	Family() string
	// Probe inspects the already-mounted source at mountpoint and returns
	// its Info.
	Probe(mountpoint string) (Info, error)
	// Mkfs creates a fresh filesystem at device per info and overrides.
	Mkfs(device string, info Info, overrides Overrides) error
	// Mount attaches device at mountpoint using options reconstructed from
	// Info.MountOptions, merged with overrides.
	Mount(device, mountpoint string, options []string) error
	// Umount detaches a previously Mount-ed mountpoint.
	Umount(mountpoint string) error
	// RequiredMountOptions returns options that must be present and options
	// that must be absent for a safe read-only capture (§4.8 step 1).
	RequiredMountOptions() (require, forbid []string)
}

// Registry resolves a Provider by family name, the realization of §9's
// "tagged variant plus dispatch table".
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a Registry pre-populated with DirFileSystemProvider
// under the family name "dir".
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.Register(NewDirFileSystemProvider())
	return r
}

// Register adds or replaces a provider under its own Family().
func (r *Registry) Register(p Provider) {
	r.providers[p.Family()] = p
}

// Get resolves a provider by family name.
func (r *Registry) Get(family string) (Provider, error) {
	p, ok := r.providers[family]
	if !ok {
		return nil, errs.New(errs.InvalidArg, "unknown filesystem family: "+family)
	}
	return p, nil
}
