package cephapi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

// ListFilesystems returns the filesystem list.
func (c *Client) ListFilesystems(ctx context.Context) ([]domain.FilesystemSummary, error) {
	var list []domain.FilesystemSummary
	if err := c.get(ctx, "/api/cephfs", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list filesystems: %w", err)
	}
	return list, nil
}

// GetFilesystem returns the detail document of one filesystem.
func (c *Client) GetFilesystem(ctx context.Context, id int) (*domain.FilesystemDetail, error) {
	var detail domain.FilesystemDetail
	if err := c.get(ctx, "/api/cephfs/"+strconv.Itoa(id), nil, &detail); err != nil {
		return nil, fmt.Errorf("failed to get filesystem %d: %w", id, err)
	}
	return &detail, nil
}
