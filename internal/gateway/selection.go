package gateway

import "sort"

// Select replaces the selection with the given hostnames. Hostnames not in
// the current rows are ignored. It returns the resulting selection.
func (a *Aggregator) Select(hostnames ...string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.rowHostnames()
	a.selection = make(map[string]struct{}, len(hostnames))
	for _, h := range hostnames {
		if _, ok := current[h]; ok {
			a.selection[h] = struct{}{}
		}
	}
	return a.selectedLocked()
}

// ClearSelection empties the selection.
func (a *Aggregator) ClearSelection() {
	a.mu.Lock()
	a.selection = make(map[string]struct{})
	a.mu.Unlock()
}

// Selected returns the selected hostnames, sorted.
func (a *Aggregator) Selected() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedLocked()
}

func (a *Aggregator) selectedLocked() []string {
	out := make([]string, 0, len(a.selection))
	for h := range a.selection {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// reconcileSelection drops selected hostnames that left the rows.
// Callers hold a.mu.
func (a *Aggregator) reconcileSelection() {
	current := a.rowHostnames()
	for h := range a.selection {
		if _, ok := current[h]; !ok {
			delete(a.selection, h)
		}
	}
}

func (a *Aggregator) rowHostnames() map[string]struct{} {
	out := make(map[string]struct{}, len(a.rows))
	for _, r := range a.rows {
		out[r.Hostname] = struct{}{}
	}
	return out
}
