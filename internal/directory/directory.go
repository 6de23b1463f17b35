// Package directory serves the read-only Site/Cloud topology snapshot
// described in spec.md §4.3: getCloudList, getCloud, getSite, consistent
// for the duration of one assign() call, reloaded wholesale between calls.
package directory

import (
	"sync/atomic"

	"github.com/gridassign/gridassign/internal/model"
)

// Directory is the Site/Cloud topology collaborator named in spec.md §6.
// It holds no lock on the read path: Snapshot swaps an immutable pointer,
// so an in-flight assign() call's view never changes mid-decision even if
// a reload completes concurrently.
type Directory struct {
	current atomic.Pointer[model.DirectorySnapshot]
}

// New returns a Directory seeded with an empty snapshot. Callers must load
// a real snapshot (via Replace, e.g. with one from LoadFile) before serving
// decisions.
func New() *Directory {
	d := &Directory{}
	d.current.Store(&model.DirectorySnapshot{Clouds: map[string]model.Cloud{}, Sites: map[string]model.Site{}})
	return d
}

// Snapshot returns the current consistent topology view.
func (d *Directory) Snapshot() *model.DirectorySnapshot {
	return d.current.Load()
}

// Replace atomically swaps in a newly loaded snapshot.
func (d *Directory) Replace(snap *model.DirectorySnapshot) {
	d.current.Store(snap)
}

// GetCloudList returns every cloud in the current snapshot.
func (d *Directory) GetCloudList() []model.Cloud {
	return d.Snapshot().CloudList()
}

// GetCloud looks up one cloud by name in the current snapshot.
func (d *Directory) GetCloud(name string) (model.Cloud, bool) {
	return d.Snapshot().GetCloud(name)
}

// GetSite looks up one site by name in the current snapshot.
func (d *Directory) GetSite(name string) (model.Site, bool) {
	return d.Snapshot().GetSite(name)
}
