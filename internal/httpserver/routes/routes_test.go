package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/capacity"
	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/index"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
	"github.com/MrSnakeDoc/clusterview/internal/notify"
	"github.com/MrSnakeDoc/clusterview/internal/sources/inventory"
	"github.com/MrSnakeDoc/clusterview/internal/tasks"
)

const testInventory = `---
hosts:
  - hostname: ceph-node-00
    addr: 10.0.0.10
  - hostname: ceph-node-01
    addr: 10.0.0.11
  - hostname: ceph-node-02
    addr: 10.0.0.12
sources:
  - name: orchestrator
    services:
      - service_type: nvmeof
        service_id: rbd.gw1
        service_name: nvmeof.rbd.gw1
        placement:
          hosts: [ceph-node-00]
        spec:
          group: gw1
`

type staticMetrics struct{}

func (staticMetrics) QueryByApplication(context.Context, string) ([]domain.MetricSample, error) {
	return []domain.MetricSample{{Application: "Block", Value: 1 << 30}}, nil
}

type clusterSource interface {
	gateway.ClusterSource
	gateway.PlacementUpdater
}

func newInventory(t *testing.T) *inventory.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(testInventory), 0o644); err != nil {
		t.Fatalf("Failed to create inventory file: %v", err)
	}
	src, err := inventory.NewSource(inventory.NewLoader(path), logger.Nop())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	return src
}

func newTestDeps(t *testing.T) deps.Deps {
	t.Helper()
	return newTestDepsWith(t, newInventory(t))
}

func newTestDepsWith(t *testing.T, src clusterSource) deps.Deps {
	t.Helper()
	log := logger.Nop()
	tracker := tasks.NewTracker(log, 10)
	center := notify.NewCenter(log, 10)
	registry := gateway.NewRegistry(gateway.Deps{
		Source:   src,
		Updater:  src,
		Tasks:    tracker,
		Notifier: center,
		Logger:   log,
	})
	t.Cleanup(registry.DisposeAll)

	return deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		TimeNow:       time.Now,
		FetchTimeout:  time.Second,
		MemoryIndex:   index.NewMemoryIndex(),
		Gateways:      registry,
		Tasks:         tracker,
		Notifications: center,
		ReloadTrigger: make(chan struct{}, 1),
		SourceName:    "inventory",
	}
}

func newRouter(d deps.Deps) http.Handler {
	r := chi.NewRouter()
	RegisterAll(r, d)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) gateway.View {
	t.Helper()
	var v gateway.View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	return v
}

func rowHostnames(v gateway.View) []string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Hostname
	}
	return out
}

func TestAvailableNodes(t *testing.T) {
	h := newRouter(newTestDeps(t))

	rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	v := decodeView(t, rec)
	if got := strings.Join(rowHostnames(v), ","); got != "ceph-node-01,ceph-node-02" {
		t.Errorf("rows = %s, want ceph-node-01,ceph-node-02", got)
	}
	if v.Count != 2 || !v.HasAvailableHosts {
		t.Errorf("count = %d, has_available_hosts = %v", v.Count, v.HasAvailableHosts)
	}

	rec = do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

// gatedSource holds the next ListHosts call until release is closed, and
// stalls every call while stall is set.
type gatedSource struct {
	*inventory.Source
	entered chan struct{}
	stall   atomic.Bool

	mu      sync.Mutex
	release chan struct{}
}

func (s *gatedSource) hold() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = make(chan struct{})
	return s.release
}

func (s *gatedSource) wait(ctx context.Context) error {
	s.mu.Lock()
	release := s.release
	s.release = nil
	s.mu.Unlock()

	switch {
	case release != nil:
		s.entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	case s.stall.Load():
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *gatedSource) ListHosts(ctx context.Context, f domain.HostFilter) ([]domain.Host, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Source.ListHosts(ctx, f)
}

func (s *gatedSource) FetchHostsAndGroups(ctx context.Context) ([]domain.Host, [][]domain.ServiceSpec, error) {
	if s.stall.Load() {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return s.Source.FetchHostsAndGroups(ctx)
}

func TestAvailableNodesFiltersDuringRunningCycle(t *testing.T) {
	src := &gatedSource{Source: newInventory(t), entered: make(chan struct{}, 1)}
	d := newTestDepsWith(t, src)
	d.FetchTimeout = 5 * time.Second
	h := newRouter(d)

	// An earlier filtered listing must not leak into later ones.
	if rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available?search=node-01", ""); rec.Code != http.StatusOK {
		t.Fatalf("search=node-01 status = %d", rec.Code)
	}

	release := src.hold()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available", "") }()
	<-src.entered

	tests := []struct {
		target string
		rows   string
		search string
	}{
		{"/api/nvmeof/gateway/nodes/available?search=node-02", "ceph-node-02", "node-02"},
		{"/api/nvmeof/gateway/nodes/available", "ceph-node-01,ceph-node-02", ""},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d (body %s)", tt.target, rec.Code, rec.Body.String())
		}
		v := decodeView(t, rec)
		if got := strings.Join(rowHostnames(v), ","); got != tt.rows {
			t.Errorf("GET %s rows = %s, want %s", tt.target, got, tt.rows)
		}
		if v.Filter.Search != tt.search {
			t.Errorf("GET %s filter search = %q, want %q", tt.target, v.Filter.Search, tt.search)
		}
	}

	close(release)
	rec := <-done
	if rec.Code != http.StatusOK {
		t.Fatalf("blocked request status = %d", rec.Code)
	}
	if got := strings.Join(rowHostnames(decodeView(t, rec)), ","); got != "ceph-node-01,ceph-node-02" {
		t.Errorf("blocked request rows = %s", got)
	}
}

func TestFetchTimeout(t *testing.T) {
	src := &gatedSource{Source: newInventory(t), entered: make(chan struct{}, 1)}
	d := newTestDepsWith(t, src)
	d.FetchTimeout = 50 * time.Millisecond
	h := newRouter(d)

	// Load both views while the source answers.
	if rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/groups/gw1/nodes", ""); rec.Code != http.StatusOK {
		t.Fatalf("initial group status = %d", rec.Code)
	}
	src.stall.Store(true)

	rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/groups/gw1/nodes", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("stalled group status = %d, want 504", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("stalled listing without index status = %d, want 504", rec.Code)
	}

	d.MemoryIndex.UpdateAvailableNodes([]domain.GatewayNodeRow{{Hostname: "ceph-node-01"}})
	rec = do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stalled listing with index status = %d, want 200", rec.Code)
	}
	v := decodeView(t, rec)
	if v.LastError == "" || strings.Join(rowHostnames(v), ",") != "ceph-node-01" {
		t.Errorf("fallback view = %+v, want indexed rows with last_error", v)
	}

	rec = do(t, h, http.MethodGet, "/api/nvmeof/gateway/nodes/available?search=node", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("stalled filtered listing status = %d, want 504", rec.Code)
	}
}

func TestGroupNodes(t *testing.T) {
	h := newRouter(newTestDeps(t))

	tests := []struct {
		name   string
		group  string
		status int
		rows   string
	}{
		{"existing group", "gw1", http.StatusOK, "ceph-node-00"},
		{"unknown group", "gw9", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/groups/"+tt.group+"/nodes", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if got := strings.Join(rowHostnames(decodeView(t, rec)), ","); got != tt.rows {
				t.Errorf("rows = %s, want %s", got, tt.rows)
			}
		})
	}
}

func TestAddGroupNodes(t *testing.T) {
	d := newTestDeps(t)
	h := newRouter(d)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty list", `{"hostnames":[]}`, http.StatusBadRequest},
		{"unknown field", `{"hosts":["ceph-node-01"]}`, http.StatusBadRequest},
		{"host already placed", `{"hostnames":["ceph-node-00"]}`, http.StatusConflict},
		{"unknown host", `{"hostnames":["ceph-node-99"]}`, http.StatusConflict},
		{"available host", `{"hostnames":["ceph-node-02"]}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/nvmeof/gateway/groups/gw1/nodes", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/api/nvmeof/gateway/groups/gw1/nodes", "")
	if got := strings.Join(rowHostnames(decodeView(t, rec)), ","); got != "ceph-node-00,ceph-node-02" {
		t.Errorf("rows after add = %s, want ceph-node-00,ceph-node-02", got)
	}
	if n := len(d.Tasks.List()); n != 1 {
		t.Errorf("tracked tasks = %d, want 1", n)
	}
}

func TestRemoveGroupNodeRequiresConfirmation(t *testing.T) {
	d := newTestDeps(t)
	h := newRouter(d)
	target := "/api/nvmeof/gateway/groups/gw1/nodes/ceph-node-00"

	rec := do(t, h, http.MethodDelete, target, "")
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, want 428", rec.Code)
	}
	var pending struct {
		Confirmation gateway.Confirmation `json:"confirmation"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("failed to decode confirmation: %v", err)
	}
	if pending.Confirmation.Subject != "ceph-node-00" || pending.Confirmation.Impact != gateway.ImpactHigh {
		t.Errorf("confirmation = %+v", pending.Confirmation)
	}
	if n := len(d.Tasks.List()); n != 0 {
		t.Fatalf("tasks after unconfirmed removal = %d, want 0", n)
	}

	rec = do(t, h, http.MethodDelete, target+"?confirm=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if v := decodeView(t, rec); v.Count != 0 {
		t.Errorf("count after removal = %d, want 0", v.Count)
	}

	rec = do(t, h, http.MethodDelete, "/api/nvmeof/gateway/groups/gw1/nodes/ceph-node-01?confirm=true", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-member status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, target+"?confirm=maybe", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid confirm status = %d, want 400", rec.Code)
	}
}

func TestGroupSelection(t *testing.T) {
	d := newTestDeps(t)
	h := newRouter(d)
	base := "/api/nvmeof/gateway/groups/gw1"

	if rec := do(t, h, http.MethodPost, base+"/nodes", `{"hostnames":["ceph-node-01"]}`); rec.Code != http.StatusOK {
		t.Fatalf("add status = %d (body %s)", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, base+"/selection/remove?confirm=true", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("remove without selection status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPut, base+"/selection", `{"hostnames":["ceph-node-00","ceph-node-01","ceph-node-02"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}
	if got := strings.Join(decodeView(t, rec).Selected, ","); got != "ceph-node-00,ceph-node-01" {
		t.Errorf("selected = %s, want members only", got)
	}
	rec = do(t, h, http.MethodPost, base+"/selection/remove?confirm=true", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("remove with two selected status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPut, base+"/selection", `{"hostnames":["ceph-node-01"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, base+"/selection/remove", "")
	if rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("unconfirmed remove status = %d, want 428", rec.Code)
	}
	rec = do(t, h, http.MethodPost, base+"/selection/remove?confirm=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirmed remove status = %d (body %s)", rec.Code, rec.Body.String())
	}
	v := decodeView(t, rec)
	if got := strings.Join(rowHostnames(v), ","); got != "ceph-node-00" || len(v.Selected) != 0 {
		t.Errorf("after removal rows = %s selected = %v", got, v.Selected)
	}

	rec = do(t, h, http.MethodPut, base+"/selection", `{"hostnames":["ceph-node-00"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, base+"/selection", "")
	if rec.Code != http.StatusOK || len(decodeView(t, rec).Selected) != 0 {
		t.Errorf("clear selection status = %d", rec.Code)
	}
}

func TestOptionalComponentsReturnNotFound(t *testing.T) {
	h := newRouter(newTestDeps(t))

	for _, target := range []string{
		"/api/capacity",
		"/api/cephfs/filesystems",
		"/api/nvmeof/gateway/groups/gw1/subsystems",
	} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, rec.Code)
		}
	}
}

func TestCapacityRoutes(t *testing.T) {
	d := newTestDeps(t)
	d.Capacity = capacity.New(staticMetrics{}, map[domain.CapacityType]string{
		domain.CapacityRaw:  "raw",
		domain.CapacityUsed: "used",
	}, time.Hour, logger.Nop())
	if err := d.Capacity.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	h := newRouter(d)

	rec := do(t, h, http.MethodGet, "/api/capacity", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap domain.CapacitySnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.SelectedStorageType != "Block" || len(snap.DisplayData) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"unknown storage type", "/api/capacity/storage-type", `{"storage_type":"Tape"}`, http.StatusBadRequest},
		{"current storage type", "/api/capacity/storage-type", `{"storage_type":"Block"}`, http.StatusOK},
		{"missing storage type", "/api/capacity/storage-type", `{}`, http.StatusBadRequest},
		{"unknown capacity type", "/api/capacity/type", `{"capacity_type":"cooked"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPut, tt.target, tt.body); rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	h := newRouter(newTestDeps(t))

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode healthz: %v", err)
	}
	if body.Status != "ok" || body.Source != "inventory" {
		t.Errorf("healthz = %+v, want ok from inventory", body)
	}
}

func TestOpsRoutesRestricted(t *testing.T) {
	d := newTestDeps(t)
	d.AllowedCIDRS = []string{"10.10.0.0/16"}
	h := newRouter(d)

	// httptest requests come from 192.0.2.1.
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusForbidden {
		t.Errorf("readyz status = %d, want 403", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	d := newTestDeps(t)
	h := newRouter(d)

	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before first refresh = %d, want 503", rec.Code)
	}
	d.MemoryIndex.UpdateAvailableNodes([]domain.GatewayNodeRow{{Hostname: "ceph-node-01"}})
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("status after refresh = %d, want 200", rec.Code)
	}
}

func TestReloadTrigger(t *testing.T) {
	h := newRouter(newTestDeps(t))

	if rec := do(t, h, http.MethodPost, "/reload", ""); rec.Code != http.StatusAccepted {
		t.Errorf("first reload status = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/reload", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("pending reload status = %d, want 429", rec.Code)
	}
}

func TestActivityRoutes(t *testing.T) {
	d := newTestDeps(t)
	d.Notifications.NotifyError("Failed to remove gateway node ceph-node-00: boom")
	h := newRouter(d)

	rec := do(t, h, http.MethodGet, "/api/notifications", "")
	var list []notify.Notification
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode notifications: %v", err)
	}
	if len(list) != 1 || list[0].Level != notify.LevelError {
		t.Errorf("notifications = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/api/tasks", "")
	if !strings.Contains(rec.Body.String(), `"executing":[]`) {
		t.Errorf("tasks body = %s", rec.Body.String())
	}
}

func TestMutationRateLimit(t *testing.T) {
	d := newTestDeps(t)
	d.MutationRPS = 1
	h := newRouter(d)

	target := "/api/nvmeof/gateway/groups/gw1/nodes/ceph-node-00"
	if rec := do(t, h, http.MethodDelete, target, ""); rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("first status = %d, want 428", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, target, ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
}
