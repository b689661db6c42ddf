package cephapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

type updateServiceRequest struct {
	ServiceName string             `json:"service_name"`
	ServiceSpec domain.ServiceSpec `json:"service_spec"`
}

// UpdateService replaces a service specification. The whole document is
// submitted; the orchestrator does not accept partial updates.
func (c *Client) UpdateService(ctx context.Context, spec domain.ServiceSpec) error {
	name := spec.Name()
	if name == "" {
		return errors.New("service spec has no name")
	}
	body := updateServiceRequest{ServiceName: name, ServiceSpec: spec}
	if err := c.do(ctx, http.MethodPut, "/api/service/"+url.PathEscape(name), nil, body, nil); err != nil {
		return fmt.Errorf("failed to update service %s: %w", name, err)
	}
	return nil
}
