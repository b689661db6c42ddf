package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

const sampleInventory = `---
hosts:
  - hostname: ceph-node-02
    addr: 10.0.0.12
    labels: [nvmeof]
  - hostname: ceph-node-00
    addr: 10.0.0.10
    labels: [_admin]
  - hostname: ceph-node-01
    addr: 10.0.0.11
    status: maintenance
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
          pool: ${INVENTORY_TEST_POOL}
`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create inventory file: %v", err)
	}
	return path
}

func newTestSource(t *testing.T) *Source {
	t.Helper()
	t.Setenv("INVENTORY_TEST_POOL", "rbd")
	src, err := NewSource(NewLoader(writeInventory(t, sampleInventory)), logger.Nop())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	return src
}

func hostnames(hosts []domain.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Hostname
	}
	return out
}

func TestLoaderLoad(t *testing.T) {
	t.Setenv("INVENTORY_TEST_POOL", "rbd")
	f, err := NewLoader(writeInventory(t, sampleInventory)).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Hosts) != 3 {
		t.Errorf("hosts = %d, want 3", len(f.Hosts))
	}
	if len(f.Sources) != 1 || len(f.Sources[0].Services) != 1 {
		t.Fatalf("sources = %+v, want one source with one service", f.Sources)
	}
	spec := f.Sources[0].Services[0]
	if got := spec.Group(); got != "gw1" {
		t.Errorf("Group() = %q, want gw1", got)
	}
	if got := spec.Spec["pool"]; got != "rbd" {
		t.Errorf("spec.pool = %v, want expanded env value rbd", got)
	}
}

func TestLoaderLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "hosts: [unterminated"},
		{"missing hostname", "hosts:\n  - addr: 10.0.0.1\n"},
		{"duplicate hostname", "hosts:\n  - hostname: a\n  - hostname: a\n"},
		{"unnamed service", "sources:\n  - name: x\n    services:\n      - spec: {group: gw1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(writeInventory(t, tt.content)).Load(); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	if _, err := NewLoader("/nonexistent/inventory.yaml").Load(); err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestListHosts(t *testing.T) {
	src := newTestSource(t)
	tests := []struct {
		name   string
		filter domain.HostFilter
		want   []string
	}{
		{"all sorted", domain.HostFilter{}, []string{"ceph-node-00", "ceph-node-01", "ceph-node-02"}},
		{"descending", domain.HostFilter{Sort: "-hostname"}, []string{"ceph-node-02", "ceph-node-01", "ceph-node-00"}},
		{"search by label", domain.HostFilter{Search: "NVMEOF"}, []string{"ceph-node-02"}},
		{"search by addr", domain.HostFilter{Search: "10.0.0.11"}, []string{"ceph-node-01"}},
		{"paged", domain.HostFilter{Offset: 1, Limit: 1}, []string{"ceph-node-01"}},
		{"offset past end", domain.HostFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts, err := src.ListHosts(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListHosts() error = %v", err)
			}
			got := hostnames(hosts)
			if len(got) != len(tt.want) {
				t.Fatalf("ListHosts() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ListHosts()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestUpdateServiceIsVisibleToNextFetch(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	_, groups, err := src.FetchHostsAndGroups(ctx)
	if err != nil {
		t.Fatalf("FetchHostsAndGroups() error = %v", err)
	}
	spec, ok := domain.FindGroup(groups, "gw1")
	if !ok {
		t.Fatal("group gw1 not found")
	}
	updated, err := spec.WithHosts([]string{"ceph-node-02"})
	if err != nil {
		t.Fatalf("WithHosts() error = %v", err)
	}
	if err := src.UpdateService(ctx, updated); err != nil {
		t.Fatalf("UpdateService() error = %v", err)
	}

	groups, err = src.ListGatewayGroups(ctx)
	if err != nil {
		t.Fatalf("ListGatewayGroups() error = %v", err)
	}
	spec, _ = domain.FindGroup(groups, "gw1")
	got := spec.PlacementHosts()
	if len(got) != 2 || got[0] != "ceph-node-00" || got[1] != "ceph-node-02" {
		t.Errorf("PlacementHosts() = %v, want [ceph-node-00 ceph-node-02]", got)
	}

	unknown := domain.ServiceSpec{ServiceName: "nvmeof.rbd.missing"}
	if err := src.UpdateService(ctx, unknown); err == nil {
		t.Error("UpdateService() on unknown service should return error")
	}
}

func TestFetchReturnsCopies(t *testing.T) {
	src := newTestSource(t)
	groups, _ := src.ListGatewayGroups(context.Background())
	groups[0][0].Placement.Hosts[0] = "mutated"

	again, _ := src.ListGatewayGroups(context.Background())
	if h := again[0][0].PlacementHosts()[0]; h != "ceph-node-00" {
		t.Errorf("stored placement mutated through returned copy: %q", h)
	}
}

func TestCancelledContext(t *testing.T) {
	src := newTestSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.ListHosts(ctx, domain.HostFilter{}); err == nil {
		t.Error("ListHosts() with cancelled context should return error")
	}
}
