// Package service wires the catalog, downloader, installer, registry and
// environment manager into the operations the CLI exposes.
package service

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/pysb/internal/catalog"
	"github.com/ZebulonRouseFrantzich/pysb/internal/config"
	"github.com/ZebulonRouseFrantzich/pysb/internal/download"
	"github.com/ZebulonRouseFrantzich/pysb/internal/install"
	"github.com/ZebulonRouseFrantzich/pysb/internal/logging"
	"github.com/ZebulonRouseFrantzich/pysb/internal/platform"
	"github.com/ZebulonRouseFrantzich/pysb/internal/registry"
	"github.com/ZebulonRouseFrantzich/pysb/internal/venv"
)

const (
	// DirPermissions sets the permission mode for directories pysb creates.
	DirPermissions = 0755

	downloadsDir = "downloads"
)

// Options configures a Service.
type Options struct {
	Settings *config.Settings
	Logger   logging.Logger
	// Client overrides the HTTP client used for catalog and artifact downloads.
	Client *http.Client
	// Runner overrides how interpreter commands are executed.
	Runner venv.Runner
	// Detector overrides host platform detection.
	Detector platform.Detector
	Clock    Clock
}

// Service performs pysb operations against one configuration.
type Service struct {
	settings   *config.Settings
	logger     logging.Logger
	detector   platform.Detector
	downloader *download.Downloader
	resolver   *catalog.Resolver
	registry   *registry.Registry
	installer  *install.Installer
	envs       *venv.Manager
	verifier   *download.Verifier
}

// New creates a service from resolved settings.
func New(opts Options) *Service {
	s := opts.Settings
	logger := logging.OrNop(opts.Logger)

	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	detector := opts.Detector
	if detector == nil {
		detector = platform.NewDetector()
	}

	client := opts.Client
	if client == nil && s.Timeout > 0 {
		client = &http.Client{Timeout: s.Timeout}
	}
	downloader := download.NewDownloader(download.Config{
		Retries: s.Retries,
		Client:  client,
		Logger:  logger,
	})

	variant := catalog.VariantStripped
	if s.FullBuilds {
		variant = catalog.VariantFull
	}
	resolver := catalog.NewResolver(catalog.Config{
		Source:   s.ReleasesURL,
		CacheDir: s.CacheDir,
		Variant:  variant,
		Fetcher:  downloader,
		Logger:   logger,
	})

	reg := registry.New(registry.Config{VersionsDir: s.VersionsDir, Logger: logger})
	envs := venv.New(venv.Config{
		VenvsDir: s.VenvsDir,
		Runtimes: reg,
		Runner:   opts.Runner,
		Logger:   logger,
		Now:      clock.Now,
	})
	reg.SetReferrers(envs)

	svc := &Service{
		settings:   s,
		logger:     logger,
		detector:   detector,
		downloader: downloader,
		resolver:   resolver,
		registry:   reg,
		installer:  install.New(install.Config{Registry: reg, Logger: logger, Now: clock.Now}),
		envs:       envs,
	}
	if s.Keyring != "" {
		svc.verifier = download.NewVerifier(s.Keyring)
	}
	return svc
}

// Settings returns the configuration the service was built from.
func (s *Service) Settings() *config.Settings {
	return s.settings
}

// hostTriple returns the platform to install for. An explicit platform
// string overrides host detection.
func (s *Service) hostTriple(ctx context.Context, explicit string) (platform.Triple, error) {
	if explicit != "" {
		return platform.ParseTriple(explicit)
	}
	info, err := s.detector.Detect(ctx)
	if err != nil {
		return platform.Triple{}, err
	}
	return info.Triple(), nil
}

func (s *Service) downloadPath(name string) string {
	return filepath.Join(s.settings.CacheDir, downloadsDir, name)
}
