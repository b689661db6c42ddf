package index

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

// MemoryIndex keeps the latest rendered views in memory.
// It acts as a fallback when the cluster API or Redis is unavailable
type MemoryIndex struct {
	mu                   sync.RWMutex
	nodes                []domain.GatewayNodeRow   // available gateway nodes
	filesystems          []domain.FilesystemRow    // filesystem selector
	subsystems           map[string]subsystemEntry // group -> subsystem listing
	lastReload           time.Time                 // Timestamp of last gateway node reload
	lastFilesystemReload time.Time                 // Timestamp of last filesystem reload
}

type subsystemEntry struct {
	rows      []domain.SubsystemRow
	updatedAt time.Time
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		nodes:       []domain.GatewayNodeRow{},
		filesystems: []domain.FilesystemRow{},
		subsystems:  make(map[string]subsystemEntry),
	}
}

// UpdateAvailableNodes replaces the available gateway node rows
func (idx *MemoryIndex) UpdateAvailableNodes(rows []domain.GatewayNodeRow) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nodes = slices.Clone(rows)
	if idx.nodes == nil {
		idx.nodes = []domain.GatewayNodeRow{}
	}
	idx.lastReload = time.Now()
}

// AvailableNodes returns a copy of the available gateway node rows
func (idx *MemoryIndex) AvailableNodes() []domain.GatewayNodeRow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return slices.Clone(idx.nodes)
}

// NodeCount returns the number of available gateway nodes
func (idx *MemoryIndex) NodeCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.nodes)
}

// GetLastReload returns the timestamp of the last gateway node reload
func (idx *MemoryIndex) GetLastReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastReload
}

// ─────────────────────────────────────────────────────────────────
// Filesystem methods
// ─────────────────────────────────────────────────────────────────

// UpdateFilesystems replaces the filesystem rows
func (idx *MemoryIndex) UpdateFilesystems(rows []domain.FilesystemRow) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.filesystems = slices.Clone(rows)
	if idx.filesystems == nil {
		idx.filesystems = []domain.FilesystemRow{}
	}
	idx.lastFilesystemReload = time.Now()
}

// Filesystems returns a copy of the filesystem rows
func (idx *MemoryIndex) Filesystems() []domain.FilesystemRow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return slices.Clone(idx.filesystems)
}

// GetLastFilesystemReload returns the timestamp of the last filesystem reload
func (idx *MemoryIndex) GetLastFilesystemReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastFilesystemReload
}

// ─────────────────────────────────────────────────────────────────
// Subsystem methods
// ─────────────────────────────────────────────────────────────────

// UpdateSubsystems replaces the subsystem rows of group
func (idx *MemoryIndex) UpdateSubsystems(group string, rows []domain.SubsystemRow) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.subsystems[group] = subsystemEntry{rows: slices.Clone(rows), updatedAt: time.Now()}
}

// Subsystems returns the subsystem rows of group
func (idx *MemoryIndex) Subsystems(group string) ([]domain.SubsystemRow, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.subsystems[group]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.rows), true
}

// SubsystemGroups returns the groups with a subsystem listing, sorted
func (idx *MemoryIndex) SubsystemGroups() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	groups := make([]string, 0, len(idx.subsystems))
	for g := range idx.subsystems {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// PruneSubsystems drops listings not updated since before cutoff and
// returns the removed groups
func (idx *MemoryIndex) PruneSubsystems(cutoff time.Time) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var removed []string
	for g, e := range idx.subsystems {
		if e.updatedAt.Before(cutoff) {
			delete(idx.subsystems, g)
			removed = append(removed, g)
		}
	}
	sort.Strings(removed)
	return removed
}
