package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Source serves hosts and gateway groups from an inventory file. Placement
// updates are applied in memory only.
type Source struct {
	loader *Loader
	log    logger.Logger

	mu      sync.RWMutex
	hosts   []domain.Host
	sources [][]domain.ServiceSpec
}

// NewSource creates a source and performs the initial load.
func NewSource(loader *Loader, log logger.Logger) (*Source, error) {
	s := &Source{loader: loader, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the inventory file, discarding in-memory updates.
func (s *Source) Reload() error {
	f, err := s.loader.Load()
	if err != nil {
		return err
	}
	sources := make([][]domain.ServiceSpec, 0, len(f.Sources))
	groups := 0
	for _, src := range f.Sources {
		sources = append(sources, src.Services)
		groups += len(src.Services)
	}

	s.mu.Lock()
	s.hosts = f.Hosts
	s.sources = sources
	s.mu.Unlock()

	s.log.Info("inventory loaded",
		logger.Int("hosts", len(f.Hosts)),
		logger.Int("gateway_groups", groups))
	return nil
}

// ListHosts filters, sorts and pages the inventory hosts.
func (s *Source) ListHosts(ctx context.Context, filter domain.HostFilter) ([]domain.Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	hosts := slices.Clone(s.hosts)
	s.mu.RUnlock()

	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		hosts = slices.DeleteFunc(hosts, func(h domain.Host) bool { return !hostMatches(h, q) })
	}
	sortHosts(hosts, filter.Sort)

	if filter.Offset > 0 {
		if filter.Offset >= len(hosts) {
			return []domain.Host{}, nil
		}
		hosts = hosts[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(hosts) {
		hosts = hosts[:filter.Limit]
	}
	return hosts, nil
}

func hostMatches(h domain.Host, q string) bool {
	if strings.Contains(strings.ToLower(h.Hostname), q) || strings.Contains(h.Addr, q) {
		return true
	}
	return slices.ContainsFunc(h.Labels, func(l string) bool {
		return strings.Contains(strings.ToLower(l), q)
	})
}

// sortHosts orders by hostname; "-hostname" reverses the order.
func sortHosts(hosts []domain.Host, key string) {
	desc := strings.HasPrefix(key, "-")
	slices.SortStableFunc(hosts, func(a, b domain.Host) int {
		c := strings.Compare(a.Hostname, b.Hostname)
		if desc {
			return -c
		}
		return c
	})
}

// ListGatewayGroups returns the gateway group specs of every source.
func (s *Source) ListGatewayGroups(ctx context.Context) ([][]domain.ServiceSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneSources()
}

// FetchHostsAndGroups returns every host and every gateway group spec.
func (s *Source) FetchHostsAndGroups(ctx context.Context) ([]domain.Host, [][]domain.ServiceSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups, err := s.cloneSources()
	if err != nil {
		return nil, nil, err
	}
	return slices.Clone(s.hosts), groups, nil
}

// cloneSources deep-copies the specs so callers may mutate them. Callers
// hold s.mu.
func (s *Source) cloneSources() ([][]domain.ServiceSpec, error) {
	out := make([][]domain.ServiceSpec, len(s.sources))
	for i, src := range s.sources {
		out[i] = make([]domain.ServiceSpec, len(src))
		for j, spec := range src {
			c, err := spec.Clone()
			if err != nil {
				return nil, err
			}
			out[i][j] = c
		}
	}
	return out, nil
}

// UpdateService replaces the spec carrying the same service name.
func (s *Source) UpdateService(ctx context.Context, spec domain.ServiceSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := spec.Name()
	stored, err := spec.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		for j := range s.sources[i] {
			if s.sources[i][j].Name() == name {
				s.sources[i][j] = stored
				s.log.Info("inventory placement updated",
					logger.String("service", name),
					logger.Strings("hosts", spec.PlacementHosts()))
				return nil
			}
		}
	}
	return fmt.Errorf("service %q not found in inventory", name)
}
