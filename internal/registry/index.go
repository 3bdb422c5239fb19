package registry

import (
	"path/filepath"
	"strconv"

	"github.com/ZebulonRouseFrantzich/pysb/internal/fsutil"
)

// index is the on-disk listing cache.
type index struct {
	Fingerprint string    `json:"fingerprint"`
	Runtimes    []Runtime `json:"runtimes"`
}

func (r *Registry) indexPath() string {
	return filepath.Join(r.root, indexFile)
}

// readIndex returns the cached listing if it was built from the same layout.
func (r *Registry) readIndex(fingerprint uint64) ([]Runtime, bool) {
	var idx index
	if err := fsutil.ReadJSON(r.indexPath(), &idx); err != nil {
		return nil, false
	}
	if idx.Fingerprint != strconv.FormatUint(fingerprint, 16) {
		r.logger.Debug("runtime index is stale", "path", r.indexPath())
		return nil, false
	}
	return idx.Runtimes, true
}

// writeIndex stores a listing. Failures only cost a rescan next time.
func (r *Registry) writeIndex(fingerprint uint64, runtimes []Runtime) {
	idx := index{Fingerprint: strconv.FormatUint(fingerprint, 16), Runtimes: runtimes}
	if idx.Runtimes == nil {
		idx.Runtimes = []Runtime{}
	}
	if err := fsutil.WriteJSON(r.indexPath(), idx, 0o644); err != nil {
		r.logger.Debug("failed to write runtime index", "error", err)
	}
}
