package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/pysb/internal/download"
	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
)

// Fetcher downloads a URL to a local file.
// *download.Downloader satisfies it.
type Fetcher interface {
	DownloadToFile(ctx context.Context, url, destPath string) error
}

// Config configures a Resolver.
type Config struct {
	// Source is an http(s) URL or a local path of a release document.
	Source string
	// CacheDir holds fetched catalogs; empty disables caching.
	CacheDir string
	// TTL is how long a cached catalog stays fresh (default DefaultTTL).
	TTL time.Duration
	// Variant selects stripped or full builds (default VariantStripped).
	Variant string
	Fetcher Fetcher
	Logger  logging.Logger
}

// Resolver maps versions and platforms to release artifacts.
type Resolver struct {
	source   string
	cacheDir string
	ttl      time.Duration
	variant  string
	fetcher  Fetcher
	logger   logging.Logger

	mu       sync.Mutex
	release  *release
	sumsPath string
}

// NewResolver creates a resolver. The catalog is loaded on first use.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		source:   cfg.Source,
		cacheDir: cfg.CacheDir,
		ttl:      cfg.TTL,
		variant:  cfg.Variant,
		fetcher:  cfg.Fetcher,
		logger:   logging.OrNop(cfg.Logger),
	}
	if r.source == "" {
		r.source = DefaultSource
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.variant == "" {
		r.variant = VariantStripped
	}
	if r.fetcher == nil {
		r.fetcher = download.NewDownloader(download.Config{Logger: cfg.Logger})
	}
	return r
}

// Resolve returns the single artifact for version on the given platform.
// An empty libc on linux prefers gnu builds and otherwise accepts any.
func (r *Resolver) Resolve(ctx context.Context, version string, triple platform.Triple) (*Artifact, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}

	rel, err := r.load(ctx, false)
	if err != nil {
		return nil, err
	}

	var candidates []*Artifact
	for _, a := range r.artifacts(rel) {
		if a.Version == v && a.Variant == r.variant && triple.Matches(a.Triple) {
			candidates = append(candidates, a)
		}
	}

	if len(candidates) > 1 && triple.Libc == "" {
		var gnu []*Artifact
		for _, a := range candidates {
			if a.Triple.Libc == platform.LibcGNU || a.Triple.Libc == "" {
				gnu = append(gnu, a)
			}
		}
		if len(gnu) > 0 {
			candidates = gnu
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: python %s for %s (%s)", ErrNotFound, v, triple, r.variant)
	case 1:
	default:
		names := make([]string, len(candidates))
		for i, a := range candidates {
			names[i] = a.Name
		}
		return nil, fmt.Errorf("%w: python %s for %s matches %s", ErrAmbiguous, v, triple, strings.Join(names, ", "))
	}

	artifact := candidates[0]
	if artifact.Checksum == "" && hasAsset(rel, checksumsAsset) {
		sum, err := r.checksumFor(ctx, rel, artifact.Name)
		if err != nil {
			return nil, err
		}
		artifact.Checksum = sum
	}
	if artifact.Checksum == "" {
		r.logger.Warn("no checksum published for artifact", "name", artifact.Name)
	}

	return artifact, nil
}

// Available lists the artifacts matching filter, sorted by version.
func (r *Resolver) Available(ctx context.Context, filter Filter) ([]Artifact, error) {
	rel, err := r.load(ctx, false)
	if err != nil {
		return nil, err
	}

	var result []Artifact
	for _, a := range r.artifacts(rel) {
		if filter.matches(a) {
			result = append(result, *a)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if c := result[i].Version.Compare(result[j].Version); c != 0 {
			return c < 0
		}
		return result[i].Platform < result[j].Platform
	})
	return result, nil
}

// Refresh discards cached catalog data and fetches it again.
func (r *Resolver) Refresh(ctx context.Context) error {
	_, err := r.load(ctx, true)
	return err
}

// artifacts parses every recognised asset of rel.
func (r *Resolver) artifacts(rel *release) []*Artifact {
	signatures := make(map[string]string)
	for _, as := range rel.Assets {
		for _, ext := range []string{".asc", ".sig"} {
			if base, ok := strings.CutSuffix(as.Name, ext); ok {
				signatures[base] = as.BrowserDownloadURL
			}
		}
	}

	var result []*Artifact
	for _, as := range rel.Assets {
		a, ok := parseAssetName(as.Name)
		if !ok {
			continue
		}
		a.URL = as.BrowserDownloadURL
		a.Size = as.Size
		a.Checksum = parseDigest(as.Digest)
		a.SignatureURL = signatures[as.Name]
		result = append(result, a)
	}
	return result
}

// load returns the parsed release, fetching it when needed.
func (r *Resolver) load(ctx context.Context, force bool) (*release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.release != nil && !force {
		return r.release, nil
	}

	path, err := r.fetchCached(ctx, r.source, force)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var rel release
	if err := json.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", r.source, err)
	}

	r.logger.Debug("catalog loaded", "release", rel.TagName, "assets", len(rel.Assets))
	r.release = &rel
	r.sumsPath = ""
	return r.release, nil
}

// checksumFor looks name up in the release's SHA256SUMS asset.
func (r *Resolver) checksumFor(ctx context.Context, rel *release, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sumsPath == "" {
		path, err := r.fetchCached(ctx, assetURL(rel, checksumsAsset), false)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", checksumsAsset, err)
		}
		r.sumsPath = path
	}

	f, err := os.Open(r.sumsPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", checksumsAsset, err)
	}
	defer f.Close()

	sum, err := download.FindChecksum(f, name)
	if err != nil {
		r.logger.Warn("artifact missing from checksum list", "name", name)
		return "", nil
	}
	return sum, nil
}

// fetchCached returns a local path holding the content of src. Remote sources
// are cached under CacheDir for the TTL.
func (r *Resolver) fetchCached(ctx context.Context, src string, force bool) (string, error) {
	if !isRemote(src) {
		path := strings.TrimPrefix(src, "file://")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("catalog source: %w", err)
		}
		return path, nil
	}

	var cachePath string
	if r.cacheDir != "" {
		cachePath = CachePath(r.cacheDir, src)
	} else {
		tmp, err := os.MkdirTemp("", "pysb-catalog-*")
		if err != nil {
			return "", fmt.Errorf("create temp dir: %w", err)
		}
		cachePath = filepath.Join(tmp, "catalog.json")
	}

	if !force {
		if info, err := os.Stat(cachePath); err == nil && time.Since(info.ModTime()) < r.ttl {
			r.logger.Debug("using cached catalog", "url", src, "path", cachePath)
			return cachePath, nil
		}
	}

	r.logger.Info("downloading", "url", src)
	// The downloader renames into place, so readers never see a partial file.
	if err := r.fetcher.DownloadToFile(ctx, src, cachePath); err != nil {
		return "", err
	}
	return cachePath, nil
}

// CachePath returns where the content of url is cached under cacheDir.
func CachePath(cacheDir, url string) string {
	id := uuid.NewMD5(uuid.NameSpaceURL, []byte(url)).String()
	return filepath.Join(cacheDir, "catalog", id[:2], id[2:4], id)
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func hasAsset(rel *release, name string) bool {
	return assetURL(rel, name) != ""
}

func assetURL(rel *release, name string) string {
	for _, as := range rel.Assets {
		if as.Name == name {
			return as.BrowserDownloadURL
		}
	}
	return ""
}
