package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/gateway"
	"github.com/MrSnakeDoc/clusterview/internal/httpserver/deps"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

var (
	errFetchTimeout     = errors.New("cluster API did not answer within the fetch timeout")
	errSelectionChanged = errors.New("selection changed while the removal was pending")
)

type addNodesRequest struct {
	Hostnames []string `json:"hostnames" validate:"required,min=1,dive,required,hostname_rfc1123"`
}

type selectNodesRequest struct {
	Hostnames []string `json:"hostnames" validate:"omitempty,dive,required,hostname_rfc1123"`
}

type removalPending struct {
	Confirmation gateway.Confirmation `json:"confirmation"`
	Hint         string               `json:"hint"`
}

// AvailableNodes lists hosts that are not placed on any gateway group.
// When an unfiltered live fetch fails the last refreshed rows are served
// instead, with last_error set.
func AvailableNodes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := hostFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		view, fetchErr := availableNodes(r.Context(), d, filter)
		if fetchErr == nil && view.Loaded {
			writeJSON(w, http.StatusOK, view)
			return
		}

		// Indexed rows are unfiltered, they cannot answer a filtered listing.
		last := d.MemoryIndex.GetLastReload()
		if !filter.IsZero() || last.IsZero() {
			if fetchErr == nil {
				writeError(w, http.StatusServiceUnavailable, "gateway nodes not loaded yet")
				return
			}
			writeError(w, fetchStatus(fetchErr), fetchErr.Error())
			return
		}

		rows := d.MemoryIndex.AvailableNodes()
		d.Logger.Debug("serving indexed gateway nodes",
			logger.Int("count", len(rows)),
			logger.Error(fetchErr))
		writeJSON(w, http.StatusOK, gateway.View{
			Mode:      gateway.ModeSelector,
			Rows:      rows,
			Count:     len(rows),
			Selected:  []string{},
			Loaded:    true,
			UpdatedAt: last,
			LastError: errString(fetchErr, ""),
		})
	}
}

// availableNodes drives the shared selector aggregator for unfiltered
// listings. Filtered listings, and unfiltered ones that find a cycle in
// flight, run on a private aggregator so the rows always match filter.
func availableNodes(ctx context.Context, d deps.Deps, filter domain.HostFilter) (gateway.View, error) {
	if filter.IsZero() {
		agg := d.Gateways.Selector()
		ran, err := fetch(ctx, d, agg, gateway.ModeSelector, "", filter)
		if err != nil {
			return gateway.View{}, err
		}
		if view := agg.View(); ran && view.Filter == filter {
			return view, nil
		}
	}

	ctx, cancel := withFetchTimeout(ctx, d)
	defer cancel()
	view, err := d.Gateways.Query(ctx, filter)
	return view, cycleErr(err)
}

// GroupNodes lists the hosts placed on one gateway group.
func GroupNodes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := chi.URLParam(r, "group")
		agg := d.Gateways.Details(group)

		if _, err := fetch(r.Context(), d, agg, gateway.ModeDetails, group, domain.HostFilter{}); err != nil {
			writeError(w, fetchStatus(err), err.Error())
			return
		}
		view := agg.View()
		if !view.Loaded {
			writeError(w, http.StatusServiceUnavailable, "gateway group is loading")
			return
		}
		if !view.GroupFound {
			writeError(w, http.StatusNotFound, gateway.ErrGroupNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// AddGroupNodes places the given hosts on a gateway group.
func AddGroupNodes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addNodesRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		group := chi.URLParam(r, "group")
		agg, ok := loadedDetails(w, r, d, group)
		if !ok {
			return
		}

		if err := agg.AddMembers(r.Context(), req.Hostnames); err != nil {
			writeError(w, mutationStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, agg.View())
	}
}

// SelectGroupNodes replaces the selection of a group view. Hostnames that are
// not rows of the view are ignored; an empty list clears the selection.
func SelectGroupNodes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectNodesRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		agg, ok := loadedDetails(w, r, d, chi.URLParam(r, "group"))
		if !ok {
			return
		}
		agg.Select(req.Hostnames...)
		writeJSON(w, http.StatusOK, agg.View())
	}
}

func ClearGroupSelection(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agg, ok := loadedDetails(w, r, d, chi.URLParam(r, "group"))
		if !ok {
			return
		}
		agg.ClearSelection()
		writeJSON(w, http.StatusOK, agg.View())
	}
}

// RemoveSelectedGroupNode detaches the selected host from a gateway group.
// Exactly one row must be selected. Without ?confirm=true nothing is
// submitted and the confirmation to show is returned with 428.
func RemoveSelectedGroupNode(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		confirmed, ok := confirmParam(w, r)
		if !ok {
			return
		}
		agg, ok := loadedDetails(w, r, d, chi.URLParam(r, "group"))
		if !ok {
			return
		}
		removeSelected(w, r, agg, confirmed, "")
	}
}

// RemoveGroupNode selects hostname in the group view and removes it like
// RemoveSelectedGroupNode. The removal is refused with 409 if the selection
// changed before it was confirmed.
func RemoveGroupNode(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		confirmed, ok := confirmParam(w, r)
		if !ok {
			return
		}
		hostname := chi.URLParam(r, "hostname")
		agg, ok := loadedDetails(w, r, d, chi.URLParam(r, "group"))
		if !ok {
			return
		}
		if len(agg.Select(hostname)) == 0 {
			writeError(w, http.StatusNotFound, gateway.ErrNotMember.Error()+": "+hostname)
			return
		}
		removeSelected(w, r, agg, confirmed, hostname)
	}
}

// removeSelected runs RemoveSelected. A non-empty want must be the subject
// of the confirmation.
func removeSelected(w http.ResponseWriter, r *http.Request, agg *gateway.Aggregator, confirmed bool, want string) {
	var pending *gateway.Confirmation
	confirmer := gateway.ConfirmFunc(func(_ context.Context, c gateway.Confirmation) (bool, error) {
		if want != "" && c.Subject != want {
			return false, errSelectionChanged
		}
		if confirmed {
			return true, nil
		}
		pending = &c
		return false, nil
	})

	err := agg.RemoveSelected(r.Context(), confirmer)
	switch {
	case errors.Is(err, gateway.ErrDeclined) && pending != nil:
		writeJSON(w, http.StatusPreconditionRequired, removalPending{
			Confirmation: *pending,
			Hint:         "repeat the request with ?confirm=true",
		})
	case err != nil:
		writeError(w, mutationStatus(err), err.Error())
	default:
		writeJSON(w, http.StatusOK, agg.View())
	}
}

func confirmParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("confirm")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid confirm parameter")
		return false, false
	}
	return v, true
}

// loadedDetails returns the details aggregator of group, fetching it first
// when it has not loaded yet. It writes the error response itself.
func loadedDetails(w http.ResponseWriter, r *http.Request, d deps.Deps, group string) (*gateway.Aggregator, bool) {
	agg := d.Gateways.Details(group)
	if !agg.View().Loaded {
		if _, err := fetch(r.Context(), d, agg, gateway.ModeDetails, group, domain.HostFilter{}); err != nil {
			writeError(w, fetchStatus(err), err.Error())
			return nil, false
		}
	}
	view := agg.View()
	switch {
	case !view.Loaded:
		writeError(w, http.StatusServiceUnavailable, "gateway group is loading")
		return nil, false
	case !view.GroupFound:
		writeError(w, http.StatusNotFound, gateway.ErrGroupNotFound.Error())
		return nil, false
	}
	return agg, true
}

// fetch runs one cycle bounded by the request and the fetch timeout and
// reports whether it ran. A dropped call (cycle already in flight) is not an
// error; a cycle cut short by the deadline is.
func fetch(ctx context.Context, d deps.Deps, agg *gateway.Aggregator, mode gateway.Mode, group string, filter domain.HostFilter) (bool, error) {
	ctx, cancel := withFetchTimeout(ctx, d)
	defer cancel()

	var fetchErr error
	fc := gateway.NewFetchContext(filter, func(err error) { fetchErr = err })
	if !agg.Fetch(ctx, mode, group, fc) {
		return false, nil
	}
	if fetchErr != nil {
		return true, fetchErr
	}
	return true, cycleErr(ctx.Err())
}

func cycleErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errFetchTimeout
	}
	return err
}

func fetchStatus(err error) int {
	if errors.Is(err, errFetchTimeout) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func mutationStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrNoSelection):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrGroupNotFound), errors.Is(err, gateway.ErrNotMember):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrHostUnavailable), errors.Is(err, errSelectionChanged):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrDeclined):
		return http.StatusPreconditionRequired
	case errors.Is(err, gateway.ErrDisposed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func errString(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
