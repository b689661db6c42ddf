package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

type fakeNodeView struct {
	rows    []domain.GatewayNodeRow
	err     error
	dropped bool
	calls   atomic.Int32
}

func (f *fakeNodeView) Fetch(_ context.Context, mode gateway.Mode, _ string, fc *gateway.FetchContext) bool {
	f.calls.Add(1)
	if f.dropped {
		return false
	}
	if mode != gateway.ModeSelector {
		panic("refresher must fetch the selector view")
	}
	if f.err != nil {
		fc.Error(f.err)
	}
	return true
}

func (f *fakeNodeView) View() gateway.View {
	return gateway.View{Mode: gateway.ModeSelector, Rows: f.rows, Count: len(f.rows), Loaded: true}
}

type fakeFilesystems struct {
	rows []domain.FilesystemRow
	err  error
}

func (f *fakeFilesystems) Rows(context.Context) ([]domain.FilesystemRow, error) {
	return f.rows, f.err
}

func TestViewRefresherReload(t *testing.T) {
	idx := index.NewMemoryIndex()
	nodes := &fakeNodeView{rows: []domain.GatewayNodeRow{{Hostname: "node-a"}, {Hostname: "node-b"}}}
	fs := &fakeFilesystems{rows: []domain.FilesystemRow{{ID: 1, Name: "cephfs"}}}

	vr := NewViewRefresher(nodes, fs, nil, nil, idx, logger.New("error", false), time.Hour, nil)
	if err := vr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := idx.NodeCount(); got != 2 {
		t.Errorf("NodeCount() = %d, want 2", got)
	}
	if got := idx.Filesystems(); len(got) != 1 || got[0].Name != "cephfs" {
		t.Errorf("Filesystems() = %v, want [cephfs]", got)
	}
}

func TestViewRefresherKeepsIndexOnFailure(t *testing.T) {
	idx := index.NewMemoryIndex()
	idx.UpdateAvailableNodes([]domain.GatewayNodeRow{{Hostname: "cached"}})
	idx.UpdateFilesystems([]domain.FilesystemRow{{ID: 7}})

	nodes := &fakeNodeView{err: errors.New("api down")}
	fs := &fakeFilesystems{err: errors.New("api down")}

	vr := NewViewRefresher(nodes, fs, nil, nil, idx, logger.New("error", false), time.Hour, nil)
	err := vr.Reload(context.Background())
	if err == nil {
		t.Fatal("Reload() error = nil, want joined failures")
	}

	if got := idx.AvailableNodes(); len(got) != 1 || got[0].Hostname != "cached" {
		t.Errorf("AvailableNodes() = %v, want cached rows kept", got)
	}
	if got := idx.Filesystems(); len(got) != 1 || got[0].ID != 7 {
		t.Errorf("Filesystems() = %v, want cached rows kept", got)
	}
}

func TestViewRefresherSkipsDroppedFetch(t *testing.T) {
	idx := index.NewMemoryIndex()
	nodes := &fakeNodeView{dropped: true, rows: []domain.GatewayNodeRow{{Hostname: "x"}}}

	vr := NewViewRefresher(nodes, nil, nil, nil, idx, logger.New("error", false), time.Hour, nil)
	if err := vr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if !idx.GetLastReload().IsZero() {
		t.Error("index updated from a dropped fetch")
	}
}

func TestViewRefresherManualTrigger(t *testing.T) {
	idx := index.NewMemoryIndex()
	nodes := &fakeNodeView{}
	trigger := make(chan struct{}, 1)

	vr := NewViewRefresher(nodes, nil, nil, nil, idx, logger.New("error", false), time.Hour, trigger)
	vr.Start(context.Background())
	defer vr.Stop()

	if got := nodes.calls.Load(); got != 1 {
		t.Fatalf("calls after Start() = %d, want 1", got)
	}
	trigger <- struct{}{}
	waitFor(t, func() bool { return nodes.calls.Load() == 2 })
	vr.Stop()
}
