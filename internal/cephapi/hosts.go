package cephapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

// ListHosts returns the host inventory, forwarding the table filter.
func (c *Client) ListHosts(ctx context.Context, filter domain.HostFilter) ([]domain.Host, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Sort != "" {
		q.Set("sort", filter.Sort)
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var hosts []domain.Host
	if err := c.get(ctx, "/api/host", q, &hosts); err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	if hosts == nil {
		hosts = []domain.Host{}
	}
	return hosts, nil
}

// FetchHostsAndGroups loads the full inventory and the gateway groups
// concurrently. Either failure fails the whole call.
func (c *Client) FetchHostsAndGroups(ctx context.Context) ([]domain.Host, [][]domain.ServiceSpec, error) {
	var (
		hosts  []domain.Host
		groups [][]domain.ServiceSpec
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hosts, err = c.ListHosts(gctx, domain.HostFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = c.ListGatewayGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return hosts, groups, nil
}
