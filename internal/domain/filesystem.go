package domain

import (
	"sort"
	"strconv"
	"strings"
)

// MDS statuses shown by the filesystem selector.
const (
	MdsActive   = "Active"
	MdsWarning  = "Warning"
	MdsInactive = "Inactive"
)

// Mirroring statuses shown by the filesystem selector.
const (
	MirroringEnabled  = "Enabled"
	MirroringDisabled = "Disabled"
)

var mdsStateToStatus = map[string]string{
	"up:active":    MdsActive,
	"up:starting":  MdsWarning,
	"up:rejoin":    MdsWarning,
	"down:failed":  MdsInactive,
	"down:stopped": MdsInactive,
	"down:crashed": MdsInactive,
}

// MdsStatus maps an MDS daemon state to its display status. Unknown and
// empty states are Inactive.
func MdsStatus(state string) string {
	if s, ok := mdsStateToStatus[state]; ok {
		return s
	}
	return MdsInactive
}

// FilesystemSummary is one entry of the filesystem list.
type FilesystemSummary struct {
	ID         int            `json:"id"`
	MdsMap     MdsMap         `json:"mdsmap"`
	MirrorInfo map[string]any `json:"mirror_info,omitempty"`
}

// MdsMap carries the MDS daemons keyed by gid.
type MdsMap struct {
	FsName  string             `json:"fs_name"`
	Enabled bool               `json:"enabled"`
	Info    map[string]MdsInfo `json:"info"`
}

// MdsInfo is a single MDS daemon entry.
type MdsInfo struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// FirstState returns the state of the lowest gid entry, or "". Keys are
// "gid_<n>" and compare numerically; keys without a number sort last.
func (m MdsMap) FirstState() string {
	if len(m.Info) == 0 {
		return ""
	}
	gids := make([]string, 0, len(m.Info))
	for gid := range m.Info {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool {
		ni, iok := gidNumber(gids[i])
		nj, jok := gidNumber(gids[j])
		switch {
		case iok && jok && ni != nj:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return gids[i] < gids[j]
		}
	})
	return m.Info[gids[0]].State
}

func gidNumber(key string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimPrefix(key, "gid_"), 10, 64)
	return n, err == nil
}

// FilesystemDetail is the per-filesystem detail document.
type FilesystemDetail struct {
	Cephfs *FilesystemInfo `json:"cephfs"`
}

// FilesystemInfo is the "cephfs" section of a detail document.
type FilesystemInfo struct {
	ID    int              `json:"id"`
	Name  string           `json:"name"`
	Pools []FilesystemPool `json:"pools"`
}

// FilesystemPool is a data or metadata pool backing a filesystem.
type FilesystemPool struct {
	Pool string  `json:"pool"`
	Used float64 `json:"used"`
}

// FilesystemRow is a filesystem selector view row.
type FilesystemRow struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Pools           []string `json:"pools"`
	Used            string   `json:"used"`
	MdsStatus       string   `json:"mdsStatus"`
	MirroringStatus string   `json:"mirroringStatus"`
}

// NewFilesystemRow joins a list entry with its detail. It returns false when
// the detail carries no filesystem section.
func NewFilesystemRow(summary FilesystemSummary, detail *FilesystemDetail) (FilesystemRow, bool) {
	if detail == nil || detail.Cephfs == nil {
		return FilesystemRow{}, false
	}
	pools := make([]string, 0, len(detail.Cephfs.Pools))
	var used float64
	for _, p := range detail.Cephfs.Pools {
		pools = append(pools, p.Pool)
		used += p.Used
	}
	mirroring := MirroringDisabled
	if summary.MirrorInfo != nil {
		mirroring = MirroringEnabled
	}
	return FilesystemRow{
		ID:              detail.Cephfs.ID,
		Name:            detail.Cephfs.Name,
		Pools:           pools,
		Used:            strconv.FormatFloat(used, 'f', -1, 64),
		MdsStatus:       MdsStatus(summary.MdsMap.FirstState()),
		MirroringStatus: mirroring,
	}, true
}
