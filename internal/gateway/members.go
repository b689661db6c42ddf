package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// Task names of the tracked mutations.
const (
	TaskRemoveNode = "nvmeof/gateway-node/delete"
	TaskAddNode    = "nvmeof/gateway-node/add"
)

// RemoveSelected removes the single selected host from the current group.
func (a *Aggregator) RemoveSelected(ctx context.Context, c Confirmer) error {
	selected := a.Selected()
	if len(selected) != 1 || selected[0] == "" {
		return ErrNoSelection
	}
	return a.RemoveMember(ctx, selected[0], c)
}

// RemoveMember asks c for confirmation, then submits the current group spec
// without hostname. The view is refreshed whatever the outcome; a failed
// submission is reported once through the notifier and not retried.
func (a *Aggregator) RemoveMember(ctx context.Context, hostname string, c Confirmer) error {
	if hostname == "" {
		return ErrNoSelection
	}
	if a.lifetime.Err() != nil {
		return ErrDisposed
	}

	a.mu.Lock()
	spec := a.spec
	mode, group := a.mode, a.group
	_, member := a.rowHostnames()[hostname]
	a.mu.Unlock()

	if mode != ModeDetails || spec == nil {
		return ErrGroupNotFound
	}
	if !member {
		return fmt.Errorf("%w: %s", ErrNotMember, hostname)
	}

	ok, err := c.Confirm(ctx, RemovalConfirmation(hostname))
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return ErrDeclined
	}

	updated, err := spec.WithoutHost(hostname)
	if err != nil {
		return err
	}

	err = a.submit(ctx, TaskRemoveNode, map[string]any{"hostname": hostname}, updated)
	a.refresh(ctx, mode, group)
	if err != nil {
		a.notify(fmt.Sprintf("Failed to remove gateway node %s: %v", hostname, err))
		return err
	}

	a.log.Info("gateway node removed",
		logger.String("group", group),
		logger.String("hostname", hostname))
	return nil
}

// AddMembers appends hostnames to the current group placement. Every host
// must exist and be unused by any group.
func (a *Aggregator) AddMembers(ctx context.Context, hostnames []string) error {
	if len(hostnames) == 0 {
		return ErrNoSelection
	}
	if a.lifetime.Err() != nil {
		return ErrDisposed
	}

	a.mu.Lock()
	spec := a.spec
	mode, group := a.mode, a.group
	var unavailable []string
	for _, h := range hostnames {
		_, known := a.hosts[h]
		_, taken := a.used[h]
		if !known || taken {
			unavailable = append(unavailable, h)
		}
	}
	a.mu.Unlock()

	if mode != ModeDetails || spec == nil {
		return ErrGroupNotFound
	}
	if len(unavailable) > 0 {
		return fmt.Errorf("%w: %s", ErrHostUnavailable, strings.Join(unavailable, ", "))
	}

	updated, err := spec.WithHosts(hostnames)
	if err != nil {
		return err
	}

	meta := map[string]any{"group": group, "hostnames": append([]string(nil), hostnames...)}
	err = a.submit(ctx, TaskAddNode, meta, updated)
	a.refresh(ctx, mode, group)
	if err != nil {
		a.notify(fmt.Sprintf("Failed to add gateway nodes %s: %v", strings.Join(hostnames, ", "), err))
		return err
	}

	a.log.Info("gateway nodes added",
		logger.String("group", group),
		logger.Strings("hostnames", hostnames))
	return nil
}

func (a *Aggregator) submit(ctx context.Context, task string, meta map[string]any, spec domain.ServiceSpec) error {
	if a.deps.Updater == nil {
		return errors.New("no placement updater configured")
	}
	call := func(ctx context.Context) error {
		return a.deps.Updater.UpdateService(ctx, spec)
	}
	if a.deps.Tasks == nil {
		return call(ctx)
	}
	return a.deps.Tasks.Run(ctx, task, meta, call)
}

func (a *Aggregator) refresh(ctx context.Context, mode Mode, group string) {
	a.Fetch(context.WithoutCancel(ctx), mode, group, nil)
}

func (a *Aggregator) notify(message string) {
	if a.deps.Notifier != nil {
		a.deps.Notifier.NotifyError(message)
		return
	}
	a.log.Error(message)
}
