package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/pysb/internal/lock"
	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
)

var versionDirPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Config configures a Registry.
type Config struct {
	VersionsDir string
	Logger      logging.Logger
}

// Registry answers questions about installed runtimes by scanning the
// versions root.
type Registry struct {
	root   string
	logger logging.Logger

	mu        sync.RWMutex
	referrers Referrers
}

// New creates a registry rooted at cfg.VersionsDir.
func New(cfg Config) *Registry {
	return &Registry{
		root:   cfg.VersionsDir,
		logger: logging.OrNop(cfg.Logger),
	}
}

// SetReferrers installs the source of environment bindings consulted by Remove.
func (r *Registry) SetReferrers(ref Referrers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrers = ref
}

// Root returns the versions root.
func (r *Registry) Root() string {
	return r.root
}

// Dir returns the published location of version.
func (r *Registry) Dir(version string) string {
	return filepath.Join(r.root, version)
}

// LocksDir returns the directory holding per-version locks.
func (r *Registry) LocksDir() string {
	return filepath.Join(r.root, LocksDirName)
}

// Interpreter returns the python3 path inside a runtime root.
func Interpreter(root string) string {
	return filepath.Join(root, "bin", "python3")
}

// Find returns the installed runtime for version.
func (r *Registry) Find(version string) (*Runtime, error) {
	v, err := catalog.ParseVersion(version)
	if err != nil {
		return nil, err
	}

	rt, ok := r.load(v.String())
	if !ok {
		return nil, fmt.Errorf("%w: python %s", ErrNotInstalled, v)
	}
	return rt, nil
}

// List returns all installed runtimes, newest version first.
func (r *Registry) List() ([]Runtime, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions directory: %w", err)
	}

	names, fingerprint := fingerprintEntries(entries)
	if cached, ok := r.readIndex(fingerprint); ok {
		return cached, nil
	}

	runtimes := make([]Runtime, 0, len(names))
	for _, name := range names {
		if rt, ok := r.load(name); ok {
			runtimes = append(runtimes, *rt)
		}
	}
	sort.Slice(runtimes, func(i, j int) bool {
		return runtimes[i].Version.Compare(runtimes[j].Version) > 0
	})

	r.writeIndex(fingerprint, runtimes)
	return runtimes, nil
}

// Remove deletes an installed version. Unless force is set, versions that
// environments still reference are refused with an *InUseError.
func (r *Registry) Remove(ctx context.Context, version string, force bool) error {
	rt, err := r.Find(version)
	if err != nil {
		return err
	}
	name := rt.Version.String()

	if !force {
		users, err := r.referencing(name)
		if err != nil {
			return err
		}
		if len(users) > 0 {
			return &InUseError{Version: name, Environments: users}
		}
	}

	l, err := lock.Acquire(ctx, r.LocksDir(), name)
	if err != nil {
		return fmt.Errorf("remove python %s: %w", name, err)
	}
	defer l.Release()

	// Move aside first so the runtime disappears from listings atomically.
	trash := filepath.Join(r.root, TrashName(name, uuid.NewString()))
	if err := os.Rename(rt.Root, trash); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: python %s", ErrNotInstalled, name)
		}
		return fmt.Errorf("remove python %s: %w", name, err)
	}
	fsutil.SyncDir(r.root)

	// Without an interpreter the trash can never be mistaken for a runtime
	// to restore.
	os.Remove(Interpreter(trash))
	if err := os.RemoveAll(trash); err != nil {
		r.logger.Warn("leftover runtime files will be collected later", "path", trash, "error", err)
	}

	r.logger.Info("removed runtime", "version", name)
	return nil
}

func (r *Registry) referencing(version string) ([]string, error) {
	r.mu.RLock()
	ref := r.referrers
	r.mu.RUnlock()

	if ref == nil {
		return nil, nil
	}
	users, err := ref.Referencing(version)
	if err != nil {
		return nil, fmt.Errorf("check environments using python %s: %w", version, err)
	}
	return users, nil
}

// load inspects <root>/<name> directly, never through the index.
func (r *Registry) load(name string) (*Runtime, bool) {
	if !versionDirPattern.MatchString(name) {
		return nil, false
	}
	v, err := catalog.ParseVersion(name)
	if err != nil {
		return nil, false
	}

	root := r.Dir(name)
	interp := Interpreter(root)
	info, err := os.Stat(interp)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return nil, false
	}

	rt := &Runtime{Version: v, Root: root, Interpreter: interp}

	var meta Metadata
	if err := fsutil.ReadJSON(filepath.Join(root, MetadataFile), &meta); err == nil {
		rt.Platform = meta.Platform
		rt.Variant = meta.Variant
		rt.InstalledAt = meta.InstalledAt
	} else {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("ignoring unreadable runtime metadata", "version", name, "error", err)
		}
		if dirInfo, err := os.Stat(root); err == nil {
			rt.InstalledAt = dirInfo.ModTime()
		}
	}

	return rt, true
}

// WriteMetadata records m inside a runtime root.
func WriteMetadata(root string, m Metadata) error {
	return fsutil.WriteJSON(filepath.Join(root, MetadataFile), m, 0o644)
}

// fingerprintEntries returns the candidate version names and a hash of the
// listing that changes whenever a runtime is published, replaced or removed.
func fingerprintEntries(entries []os.DirEntry) ([]string, uint64) {
	h := xxhash.New()
	var names []string
	for _, e := range entries {
		if !e.IsDir() || !versionDirPattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())

		h.WriteString(e.Name())
		h.WriteString("|")
		if info, err := e.Info(); err == nil {
			h.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
		}
		h.WriteString("\n")
	}
	return names, h.Sum64()
}
