// Command fsago is the thin CLI front end over the fsarchiver package,
// exposing save-fs, restore-fs, save-dir, restore-dir and archive-info
// (SPEC_FULL.md §6 "Operations"). It owns argument parsing, a progress
// spinner, and the interactive passphrase prompt; the front end itself is
// listed as an external collaborator and carries no archive logic.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bgrewell/usage"
	"github.com/theckman/yacspin"
	"golang.org/x/term"

	fsarchiver "github.com/go-fsarchiver/fsarchiver"
	"github.com/go-fsarchiver/fsarchiver/pkg/filesystem"
	"github.com/go-fsarchiver/fsarchiver/pkg/option"
	"github.com/go-fsarchiver/fsarchiver/pkg/restore"
)

func main() {
	if len(os.Args) < 2 {
		printTopLevelUsage()
		os.Exit(1)
	}

	op := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch op {
	case "save-fs":
		err = cmdSaveFS(rest)
	case "restore-fs":
		err = cmdRestoreFS(rest)
	case "save-dir":
		err = cmdSaveDir(rest)
	case "restore-dir":
		err = cmdRestoreDir(rest)
	case "archive-info":
		err = cmdArchiveInfo(rest)
	case "show-partition-table", "restore-partition-table", "probe":
		err = fmt.Errorf("%s requires partition-table and device-probing support this build does not provide", op)
	default:
		printTopLevelUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "fsago:", err)
		os.Exit(1)
	}
}

func printTopLevelUsage() {
	fmt.Fprintln(os.Stderr, "usage: fsago <save-fs|restore-fs|save-dir|restore-dir|archive-info> [options] ...")
}

// positionalArgs returns every argv token that isn't one of this command's
// boolean flags. bgrewell/usage parses named flags but exposes no
// variadic-argument helper, so trailing operands (filesystem sources,
// id=dest mappings) are recovered by hand here; every flag this command set
// declares is boolean, so a leading "-" alone is enough to recognize one.
func positionalArgs(args []string) []string {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytePass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(bytePass), nil
}

func newSpinner(suffix string) *yacspin.Spinner {
	cfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " " + suffix,
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		StopFailMessage: "failed",
	}
	s, err := yacspin.New(cfg)
	if err != nil {
		return nil
	}
	return s
}

func progressCallback(s *yacspin.Spinner) option.ProgressCallback {
	return func(currentPath string, bytesTransferred, totalBytes int64, currentObject, totalObjects int) {
		if s == nil {
			return
		}
		s.Message(fmt.Sprintf("%d/%d %s", currentObject, totalObjects, currentPath))
	}
}

func cmdSaveFS(args []string) error {
	u := usage.NewUsage(
		usage.WithApplicationName("fsago save-fs"),
		usage.WithApplicationDescription("Save one or more already-mounted filesystems into a new archive."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	overwrite := u.AddBooleanOption("f", "overwrite", false, "Overwrite an existing archive", "", nil)
	encrypt := u.AddBooleanOption("e", "encrypt", false, "Prompt for a passphrase and encrypt the archive", "", nil)
	eccLevel := u.AddBooleanOption("r", "fec", false, "Enable forward error correction at ecclevel 4", "", nil)
	if !u.Parse() {
		u.PrintUsage()
		return fmt.Errorf("failed to parse arguments")
	}
	if *help {
		u.PrintUsage()
		return nil
	}

	pos := positionalArgs(args)
	if len(pos) < 2 {
		return fmt.Errorf("usage: fsago save-fs [options] <archive> <fs-mountpoint>...")
	}
	archivePath := pos[0]
	mounts := pos[1:]

	a, err := fsarchiver.Create(archivePath)
	if err != nil {
		return err
	}

	sources := make([]fsarchiver.Source, len(mounts))
	for i, mp := range mounts {
		sources[i] = fsarchiver.Source{FSIndex: i, Mountpoint: mp, Provider: filesystem.NewDirFileSystemProvider()}
	}

	opts := []option.SaveOption{option.WithOverwrite(*overwrite)}
	if *eccLevel {
		opts = append(opts, option.WithEccLevel(4))
	}
	if *encrypt {
		pass, err := readPassphrase("encryption passphrase: ")
		if err != nil {
			return err
		}
		opts = append(opts, option.WithEncryption("aes-gcm", pass))
	}

	spinner := newSpinner("saving")
	if spinner != nil {
		spinner.Start()
		defer spinner.Stop()
	}
	opts = append(opts, option.WithSaveProgress(progressCallback(spinner)))

	return a.SaveFilesystems(context.Background(), sources, opts...)
}

func cmdRestoreFS(args []string) error {
	u := usage.NewUsage(
		usage.WithApplicationName("fsago restore-fs"),
		usage.WithApplicationDescription("Restore one or more filesystems from an archive onto mkfs-formatted destinations."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	decrypt := u.AddBooleanOption("e", "decrypt", false, "Prompt for the archive's decryption passphrase", "", nil)
	if !u.Parse() {
		u.PrintUsage()
		return fmt.Errorf("failed to parse arguments")
	}
	if *help {
		u.PrintUsage()
		return nil
	}

	pos := positionalArgs(args)
	if len(pos) < 2 {
		return fmt.Errorf("usage: fsago restore-fs [options] <archive> <id=dest[,mkfs=family]>...")
	}
	archivePath := pos[0]

	registry := filesystem.NewRegistry()
	registry.Register(filesystem.NewDirFileSystemProvider())

	var opts []option.RestoreOption
	for _, mapping := range pos[1:] {
		fsIndex, dest, mkfsFamily, err := parseDestMapping(mapping)
		if err != nil {
			return err
		}
		opts = append(opts, option.WithDestination(fsIndex, dest))
		if mkfsFamily != "" {
			opts = append(opts, option.WithMkfsFamily(fsIndex, mkfsFamily))
		} else {
			opts = append(opts, option.WithMkfsFamily(fsIndex, "dir"))
		}
	}

	if *decrypt {
		pass, err := readPassphrase("decryption passphrase: ")
		if err != nil {
			return err
		}
		opts = append(opts, option.WithDecryptPass(pass))
	}

	spinner := newSpinner("restoring")
	if spinner != nil {
		spinner.Start()
		defer spinner.Stop()
	}
	opts = append(opts, option.WithRestoreProgress(progressCallback(spinner)))

	a, err := fsarchiver.Open(archivePath)
	if err != nil {
		return err
	}
	result, err := a.RestoreFilesystems(context.Background(), registry, opts...)
	if err != nil {
		return err
	}
	return reportRestoreErrors(result)
}

// parseDestMapping parses one "id=dest[,mkfs=family]" operand (§6).
func parseDestMapping(mapping string) (fsIndex int, dest string, mkfsFamily string, err error) {
	parts := strings.Split(mapping, ",")
	idDest := strings.SplitN(parts[0], "=", 2)
	if len(idDest) != 2 {
		return 0, "", "", fmt.Errorf("malformed destination mapping %q, want id=dest", mapping)
	}
	fsIndex, err = strconv.Atoi(idDest[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("malformed filesystem id in %q: %w", mapping, err)
	}
	dest = idDest[1]
	for _, opt := range parts[1:] {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) == 2 && kv[0] == "mkfs" {
			mkfsFamily = kv[1]
		}
	}
	return fsIndex, dest, mkfsFamily, nil
}

func cmdSaveDir(args []string) error {
	u := usage.NewUsage(
		usage.WithApplicationName("fsago save-dir"),
		usage.WithApplicationDescription("Save a plain directory tree into a new archive."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	overwrite := u.AddBooleanOption("f", "overwrite", false, "Overwrite an existing archive", "", nil)
	if !u.Parse() {
		u.PrintUsage()
		return fmt.Errorf("failed to parse arguments")
	}
	if *help {
		u.PrintUsage()
		return nil
	}

	pos := positionalArgs(args)
	if len(pos) != 2 {
		return fmt.Errorf("usage: fsago save-dir [options] <archive> <dir>")
	}

	a, err := fsarchiver.Create(pos[0])
	if err != nil {
		return err
	}

	spinner := newSpinner("saving")
	if spinner != nil {
		spinner.Start()
		defer spinner.Stop()
	}

	return a.SaveDir(context.Background(), pos[1],
		option.WithOverwrite(*overwrite),
		option.WithSaveProgress(progressCallback(spinner)),
	)
}

func cmdRestoreDir(args []string) error {
	u := usage.NewUsage(
		usage.WithApplicationName("fsago restore-dir"),
		usage.WithApplicationDescription("Restore an archive's sole filesystem into a plain destination directory."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	if !u.Parse() {
		u.PrintUsage()
		return fmt.Errorf("failed to parse arguments")
	}
	if *help {
		u.PrintUsage()
		return nil
	}

	pos := positionalArgs(args)
	if len(pos) != 2 {
		return fmt.Errorf("usage: fsago restore-dir [options] <archive> <destdir>")
	}

	a, err := fsarchiver.Open(pos[0])
	if err != nil {
		return err
	}

	spinner := newSpinner("restoring")
	if spinner != nil {
		spinner.Start()
		defer spinner.Stop()
	}

	result, err := a.RestoreDir(context.Background(), pos[1], option.WithRestoreProgress(progressCallback(spinner)))
	if err != nil {
		return err
	}
	return reportRestoreErrors(result)
}

func reportRestoreErrors(result restore.Result) error {
	if total := result.Total(); total > 0 {
		return fmt.Errorf("restore completed with errors on %d object(s)", total)
	}
	return nil
}

func cmdArchiveInfo(args []string) error {
	u := usage.NewUsage(
		usage.WithApplicationName("fsago archive-info"),
		usage.WithApplicationDescription("Print an archive's identity and per-filesystem metadata."),
	)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	if !u.Parse() {
		u.PrintUsage()
		return fmt.Errorf("failed to parse arguments")
	}
	if *help {
		u.PrintUsage()
		return nil
	}

	pos := positionalArgs(args)
	if len(pos) != 1 {
		return fmt.Errorf("usage: fsago archive-info [options] <archive>")
	}

	a, err := fsarchiver.Open(pos[0])
	if err != nil {
		return err
	}
	info, err := a.Info(nil)
	if err != nil {
		return err
	}

	fmt.Printf("Archive ID: %08x\n", info.ArchID)
	fmt.Printf("Created: %s\n", info.CreatedAt)
	fmt.Printf("Filesystems: %d\n", info.FSCount)
	for i, fs := range info.FileSystems {
		fmt.Printf("  [%d] family=%s label=%q uuid=%s size=%d used=%d blocksize=%d\n",
			i, fs.Family, fs.Label, fs.UUID, fs.BytesTotal, fs.BytesUsed, fs.BlockSize)
	}
	return nil
}
