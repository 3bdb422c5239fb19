package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/download"
	"github.com/ZebulonRouseFrantzich/pysb/internal/install"
	"github.com/ZebulonRouseFrantzich/pysb/internal/lock"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
)

// MaxParallelInstalls bounds how many versions InstallAll installs at once.
const MaxParallelInstalls = 4

// InstalledVersion is an installed runtime and the environments using it.
type InstalledVersion struct {
	registry.Runtime `yaml:",inline"`
	Environments     []string `json:"environments" yaml:"environments"`
}

// AvailableVersion is a published artifact and whether it is installed.
type AvailableVersion struct {
	catalog.Artifact `yaml:",inline"`
	Installed        bool `json:"installed" yaml:"installed"`
}

// AvailableRequest filters ListAvailable. Empty fields select the host's values.
type AvailableRequest struct {
	Arches []string
	Libcs  []string
	Full   bool
}

// InstallRequest controls Install and InstallAll.
type InstallRequest struct {
	// Platform pins the target platform instead of detecting the host.
	Platform string
	// Replace reinstalls versions that are already installed.
	Replace bool
}

// InstallResult is the outcome for one requested version.
type InstallResult struct {
	Version string
	Runtime *registry.Runtime
	Err     error
}

// ListInstalled returns installed runtimes, newest first.
func (s *Service) ListInstalled() ([]InstalledVersion, error) {
	runtimes, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	envs, err := s.envs.List()
	if err != nil {
		return nil, err
	}

	users := make(map[string][]string)
	for _, env := range envs {
		users[env.Version] = append(users[env.Version], env.Name)
	}

	result := make([]InstalledVersion, 0, len(runtimes))
	for _, rt := range runtimes {
		v := rt.Version.String()
		result = append(result, InstalledVersion{Runtime: rt, Environments: users[v]})
	}
	return result, nil
}

// ListAvailable returns the artifacts published for the host OS.
func (s *Service) ListAvailable(ctx context.Context, req AvailableRequest) ([]AvailableVersion, error) {
	info, err := s.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	filter := catalog.Filter{OS: info.OS, Arches: req.Arches, Libcs: req.Libcs, Variant: catalog.VariantStripped}
	if len(filter.Arches) == 0 {
		filter.Arches = []string{info.Arch}
	}
	if req.Full || s.settings.FullBuilds {
		filter.Variant = catalog.VariantFull
	}

	artifacts, err := s.resolver.Available(ctx, filter)
	if err != nil {
		return nil, err
	}

	installed := make(map[string]string)
	runtimes, err := s.registry.List()
	if err != nil {
		return nil, err
	}
	for _, rt := range runtimes {
		installed[rt.Version.String()] = rt.Platform
	}

	result := make([]AvailableVersion, 0, len(artifacts))
	for _, a := range artifacts {
		p, ok := installed[a.Version.String()]
		result = append(result, AvailableVersion{Artifact: a, Installed: ok && p == a.Platform})
	}
	return result, nil
}

// Install resolves version, downloads it into the cache and installs it.
func (s *Service) Install(ctx context.Context, version string, req InstallRequest) (*registry.Runtime, error) {
	triple, err := s.hostTriple(ctx, req.Platform)
	if err != nil {
		return nil, err
	}
	replace := req.Replace || s.settings.Replace

	artifact, err := s.resolver.Resolve(ctx, version, triple)
	if err != nil {
		return nil, err
	}

	// Skip the download when the install would be refused anyway.
	if !replace {
		if rt, err := s.registry.Find(artifact.Version.String()); err == nil {
			return nil, fmt.Errorf("%w: python %s at %s", install.ErrAlreadyInstalled, artifact.Version, rt.Root)
		}
	}

	archive, err := s.fetch(ctx, artifact)
	if err != nil {
		return nil, err
	}

	rt, err := s.installer.Install(ctx, archive, artifact, install.Options{Replace: replace})
	if err != nil {
		// An archive that cannot be unpacked would otherwise be reused on retry.
		if errors.Is(err, install.ErrExtract) {
			os.Remove(archive)
		}
		return nil, err
	}

	// A verified archive stays cached only until it is installed.
	os.Remove(archive)
	return rt, nil
}

// fetch downloads and verifies artifact, returning the local archive path.
func (s *Service) fetch(ctx context.Context, artifact *catalog.Artifact) (string, error) {
	archive := s.downloadPath(artifact.Name)
	if err := os.MkdirAll(s.downloadPath(""), DirPermissions); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	// Two processes resuming the same .part file would corrupt it.
	l, err := lock.Acquire(ctx, s.downloadPath(".locks"), artifact.Name)
	if err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			return "", fmt.Errorf("%w: %s is being downloaded by another process", install.ErrConflict, artifact.Name)
		}
		return "", fmt.Errorf("lock download %s: %w", artifact.Name, err)
	}
	defer l.Release()

	s.logger.Info("downloading", "version", artifact.Version.String(), "url", artifact.URL)
	if err := s.downloader.Fetch(ctx, artifact.Target(), archive); err != nil {
		return "", err
	}

	if s.verifier == nil {
		return archive, nil
	}
	if artifact.SignatureURL == "" {
		return "", fmt.Errorf("%w: no signature published for %s", download.ErrIntegrity, artifact.Name)
	}
	sig := archive + ".sig"
	defer os.Remove(sig)
	if err := s.downloader.DownloadToFile(ctx, artifact.SignatureURL, sig); err != nil {
		return "", err
	}
	if err := s.verifier.VerifySignature(archive, sig); err != nil {
		os.Remove(archive)
		return "", err
	}
	s.logger.Info("signature verified", "name", artifact.Name)
	return archive, nil
}

// InstallAll installs several versions concurrently. Repeated versions are
// installed once. Results follow the order of first appearance.
func (s *Service) InstallAll(ctx context.Context, versions []string, req InstallRequest) []InstallResult {
	var unique []string
	seen := make(map[string]bool)
	for _, v := range versions {
		key := v
		if parsed, err := catalog.ParseVersion(v); err == nil {
			key = parsed.String()
		}
		if !seen[key] {
			seen[key] = true
			unique = append(unique, v)
		}
	}

	results := make([]InstallResult, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallelInstalls)
	for i, v := range unique {
		g.Go(func() error {
			rt, err := s.Install(gctx, v, req)
			mu.Lock()
			results[i] = InstallResult{Version: v, Runtime: rt, Err: err}
			mu.Unlock()
			// One version failing must not cancel the others.
			return nil
		})
	}
	g.Wait()
	return results
}

// Remove deletes an installed version.
func (s *Service) Remove(ctx context.Context, version string, force bool) error {
	return s.registry.Remove(ctx, version, force)
}

// CollectGarbage removes abandoned staging and trash directories and
// environments whose creation never finished.
func (s *Service) CollectGarbage(ctx context.Context) ([]string, error) {
	removed, err := s.installer.CollectGarbage(ctx)
	if err != nil {
		return removed, err
	}
	envs, err := s.envs.CollectGarbage(lock.StaleLockThreshold)
	return append(removed, envs...), err
}

// Host returns the detected host platform.
func (s *Service) Host(ctx context.Context) (platform.Triple, error) {
	return s.hostTriple(ctx, "")
}

// FirstError returns the first failure in results.
func FirstError(results []InstallResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
