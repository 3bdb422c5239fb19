package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Asset is a file published by a fake release.
type Asset struct {
	Name string
	Body []byte
	// Digest publishes "sha256:<hex>" in the release document.
	Digest bool
}

// Checksum returns the hex SHA256 of the asset body.
func (a Asset) Checksum() string {
	sum := sha256.Sum256(a.Body)
	return hex.EncodeToString(sum[:])
}

// CatalogServer serves a GitHub-style release document and its assets.
type CatalogServer struct {
	*httptest.Server

	mu     sync.Mutex
	assets map[string]Asset
	order  []string
	hits   map[string]int
}

// NewCatalogServer starts a server publishing assets. It is closed when the
// test finishes.
func NewCatalogServer(t *testing.T, assets ...Asset) *CatalogServer {
	t.Helper()

	s := &CatalogServer{
		assets: make(map[string]Asset),
		hits:   make(map[string]int),
	}
	for _, a := range assets {
		s.Add(a)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Add publishes another asset.
func (s *CatalogServer) Add(a Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[a.Name]; !ok {
		s.order = append(s.order, a.Name)
	}
	s.assets[a.Name] = a
}

// CatalogURL is the URL of the release document.
func (s *CatalogServer) CatalogURL() string {
	return s.URL + "/release.json"
}

// AssetURL is the download URL of the named asset.
func (s *CatalogServer) AssetURL(name string) string {
	return s.URL + "/download/" + name
}

// Hits returns how often path was requested.
func (s *CatalogServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *CatalogServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	if r.URL.Path == "/release.json" {
		s.serveRelease(w)
		return
	}

	name, ok := strings.CutPrefix(r.URL.Path, "/download/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	a, ok := s.assets[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(a.Body)
}

func (s *CatalogServer) serveRelease(w http.ResponseWriter) {
	type jsonAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int    `json:"size"`
		Digest             string `json:"digest,omitempty"`
	}

	s.mu.Lock()
	doc := struct {
		TagName string      `json:"tag_name"`
		Assets  []jsonAsset `json:"assets"`
	}{TagName: "20240224"}
	for _, name := range s.order {
		a := s.assets[name]
		ja := jsonAsset{Name: a.Name, BrowserDownloadURL: s.AssetURL(a.Name), Size: len(a.Body)}
		if a.Digest {
			ja.Digest = "sha256:" + a.Checksum()
		}
		doc.Assets = append(doc.Assets, ja)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// RuntimeAssetName returns the python-build-standalone asset name for a
// version built for target, e.g. "x86_64-unknown-linux-gnu".
func RuntimeAssetName(version, target, variant string) string {
	return "cpython-" + version + "+20240224-" + target + "-" + variant + ".tar.gz"
}
