package cephapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

// ListGatewayGroups returns the gateway group specs, one list per source.
func (c *Client) ListGatewayGroups(ctx context.Context) ([][]domain.ServiceSpec, error) {
	var groups [][]domain.ServiceSpec
	if err := c.get(ctx, "/api/nvmeof/gateway/group", nil, &groups); err != nil {
		return nil, fmt.Errorf("failed to list gateway groups: %w", err)
	}
	return groups, nil
}

// ListSubsystems returns the subsystems served by a gateway group.
func (c *Client) ListSubsystems(ctx context.Context, group string) ([]domain.Subsystem, error) {
	var list domain.SubsystemList
	if err := c.get(ctx, "/api/nvmeof/subsystem", groupQuery(group), &list); err != nil {
		return nil, fmt.Errorf("failed to list subsystems of %s: %w", group, err)
	}
	return list, nil
}

// ListInitiators returns the hosts allowed on a subsystem.
func (c *Client) ListInitiators(ctx context.Context, nqn, group string) ([]domain.Initiator, error) {
	var list domain.InitiatorList
	path := "/api/nvmeof/subsystem/" + url.PathEscape(nqn) + "/host"
	if err := c.get(ctx, path, groupQuery(group), &list); err != nil {
		return nil, fmt.Errorf("failed to list initiators of %s: %w", nqn, err)
	}
	return list, nil
}

func groupQuery(group string) url.Values {
	if group == "" {
		return nil
	}
	return url.Values{"gw_group": []string{group}}
}
