// Package install publishes runtime archives into the versions root.
//
// # Atomicity
//
// An archive is extracted into a private staging directory next to its final
// location. Only a complete, verified tree is published, with a single rename.
// Readers of the versions root therefore see either no runtime or a complete
// one. Replacing an existing runtime moves the old tree aside first and puts
// it back if publishing the new one fails.
//
// # Concurrency
//
// Each version is guarded by an O_EXCL lock file. A second installer for the
// same version fails fast with ErrConflict instead of waiting. Distinct
// versions install in parallel.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/pysb/internal/lock"
	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
)

var (
	// ErrExtract is returned when an archive cannot be unpacked into a usable runtime.
	ErrExtract = errors.New("extraction failed")
	// ErrConflict is returned when another operation on the same version is in progress.
	ErrConflict = errors.New("conflicting operation in progress")
	// ErrAlreadyInstalled is returned when the version exists and replacing was not requested.
	ErrAlreadyInstalled = errors.New("version already installed")
)

// Options controls a single install.
type Options struct {
	// Replace swaps out an existing installation of the same version.
	Replace bool
}

// Config configures an Installer.
type Config struct {
	Registry *registry.Registry
	Logger   logging.Logger
	// Now overrides the clock used for metadata timestamps.
	Now func() time.Time
}

// Installer turns downloaded archives into published runtimes.
type Installer struct {
	registry  *registry.Registry
	extractor *Extractor
	logger    logging.Logger
	now       func() time.Time
}

// New creates an installer publishing into cfg.Registry's versions root.
func New(cfg Config) *Installer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Installer{
		registry:  cfg.Registry,
		extractor: NewExtractor(),
		logger:    logging.OrNop(cfg.Logger),
		now:       now,
	}
}

// Install extracts archivePath and publishes it as artifact's version.
func (i *Installer) Install(ctx context.Context, archivePath string, artifact *catalog.Artifact, opts Options) (*registry.Runtime, error) {
	version := artifact.Version.String()
	root := i.registry.Root()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create versions directory: %w", err)
	}

	l, err := lock.Acquire(ctx, i.registry.LocksDir(), version)
	if err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			return nil, fmt.Errorf("%w: python %s is being installed or removed by another process", ErrConflict, version)
		}
		return nil, fmt.Errorf("lock python %s: %w", version, err)
	}
	defer l.Release()

	// Safe under the lock: nothing else touches this version's temp dirs.
	i.sweep(version, 0)

	final := i.registry.Dir(version)
	if _, err := os.Lstat(final); err == nil && !opts.Replace {
		return nil, fmt.Errorf("%w: python %s at %s", ErrAlreadyInstalled, version, final)
	}

	staging := filepath.Join(root, registry.StagingName(version, uuid.NewString()))
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	i.logger.Info("extracting", "version", version, "archive", filepath.Base(archivePath))
	if err := i.extractor.Extract(archivePath, staging); err != nil {
		return nil, fmt.Errorf("%w: python %s: %w", ErrExtract, version, err)
	}

	interp := registry.Interpreter(staging)
	info, err := os.Stat(interp)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w: python %s: archive has no executable bin/python3", ErrExtract, version)
	}

	meta := registry.Metadata{
		Version:     version,
		Platform:    artifact.Platform,
		Variant:     artifact.Variant,
		BuildDate:   artifact.BuildDate,
		SourceURL:   artifact.URL,
		Checksum:    artifact.Checksum,
		InstalledAt: i.now().UTC(),
	}
	if err := registry.WriteMetadata(staging, meta); err != nil {
		return nil, fmt.Errorf("%w: python %s: %w", ErrExtract, version, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := i.publish(version, staging, final, opts.Replace); err != nil {
		return nil, err
	}
	published = true

	i.logger.Info("installed", "version", version, "path", final)
	return i.registry.Find(version)
}

// publish renames staging to final, moving any existing runtime aside first.
func (i *Installer) publish(version, staging, final string, replace bool) error {
	root := i.registry.Root()

	var trash string
	if replace {
		if _, err := os.Lstat(final); err == nil {
			trash = filepath.Join(root, registry.TrashName(version, uuid.NewString()))
			if err := os.Rename(final, trash); err != nil {
				return fmt.Errorf("move old python %s aside: %w", version, err)
			}
		}
	}

	if err := os.Rename(staging, final); err != nil {
		if trash != "" {
			if restoreErr := os.Rename(trash, final); restoreErr != nil {
				i.logger.Error("failed to restore previous runtime", "version", version, "path", trash, "error", restoreErr)
			}
		}
		if _, statErr := os.Lstat(final); statErr == nil {
			return fmt.Errorf("%w: python %s was published concurrently", ErrConflict, version)
		}
		return fmt.Errorf("publish python %s: %w", version, err)
	}
	fsutil.SyncDir(root)

	if trash != "" {
		if err := os.RemoveAll(trash); err != nil {
			i.logger.Warn("leftover runtime files will be collected later", "path", trash, "error", err)
		}
	}
	return nil
}

// CollectGarbage removes staging and trash directories abandoned by crashed
// runs. Directories younger than lock.StaleLockThreshold or belonging to a
// version that is locked by a live operation are left alone. It returns the removed paths.
func (i *Installer) CollectGarbage(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(i.registry.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions directory: %w", err)
	}

	seen := make(map[string]bool)
	var removed []string
	for _, e := range entries {
		version, ok := registry.ParseTempName(e.Name())
		if !ok || seen[version] {
			continue
		}
		seen[version] = true

		if err := ctx.Err(); err != nil {
			return removed, err
		}
		l, err := lock.Acquire(ctx, i.registry.LocksDir(), version)
		if err != nil {
			if errors.Is(err, lock.ErrLockExists) {
				i.logger.Debug("skipping locked version", "version", version)
				continue
			}
			return removed, err
		}
		removed = append(removed, i.sweep(version, lock.StaleLockThreshold)...)
		l.Release()
	}
	return removed, nil
}

// sweep removes version's staging and trash directories older than minAge.
// A trash directory is restored instead when the published runtime is
// missing, which happens when a replace was interrupted between renames.
func (i *Installer) sweep(version string, minAge time.Duration) []string {
	root := i.registry.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var removed []string
	for _, e := range entries {
		v, ok := registry.ParseTempName(e.Name())
		if !ok || v != version {
			continue
		}
		path := filepath.Join(root, e.Name())

		if minAge > 0 {
			info, err := e.Info()
			if err != nil || i.now().Sub(info.ModTime()) < minAge {
				continue
			}
		}

		if i.restorable(version, e.Name()) {
			if err := os.Rename(path, i.registry.Dir(version)); err == nil {
				i.logger.Warn("restored runtime from interrupted replace", "version", version)
				continue
			}
		}

		if err := os.RemoveAll(path); err != nil {
			i.logger.Warn("failed to remove leftover directory", "path", path, "error", err)
			continue
		}
		i.logger.Debug("removed leftover directory", "path", path)
		removed = append(removed, path)
	}
	return removed
}

// restorable reports whether the trash dir name holds the only copy of a
// complete runtime for version.
func (i *Installer) restorable(version, name string) bool {
	if !registry.IsTrashName(name) {
		return false
	}
	if _, err := os.Lstat(i.registry.Dir(version)); err == nil {
		return false
	}
	info, err := os.Stat(registry.Interpreter(filepath.Join(i.registry.Root(), name)))
	return err == nil && info.Mode().Perm()&0o111 != 0
}
