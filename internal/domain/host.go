package domain

// Host represents a cluster host as reported by the management API.
//
// A Host is immutable for the duration of one fetch cycle: aggregators
// never patch hosts in place, they replace the whole set.
type Host struct {
	// Hostname uniquely identifies the host inside the cluster.
	Hostname string `json:"hostname" yaml:"hostname"`

	// Addr is the host's primary IP address.
	Addr string `json:"addr" yaml:"addr"`

	// Status is the orchestrator status ("", "maintenance", "offline", ...).
	Status string `json:"status" yaml:"status"`

	// Labels are orchestrator labels (tags) attached to the host.
	Labels []string `json:"labels" yaml:"labels"`

	// Services lists the daemons running on the host.
	Services []HostService `json:"services" yaml:"services"`
}

// HostService is a daemon reference carried by a Host.
type HostService struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// HostFilter carries the table parameters forwarded to the host listing.
type HostFilter struct {
	Search string `json:"search,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// IsZero reports whether no table parameter is set.
func (f HostFilter) IsZero() bool {
	return f == HostFilter{}
}

// GatewayNodeRow is the projection of a Host displayed by the gateway node
// tables. It is a distinct type so the view can evolve without touching the
// inventory shape.
type GatewayNodeRow struct {
	Hostname string        `json:"hostname"`
	Addr     string        `json:"addr"`
	Status   string        `json:"status"`
	Labels   []string      `json:"labels"`
	Services []HostService `json:"services"`
}

// NewGatewayNodeRow projects a host into a view row.
func NewGatewayNodeRow(h Host) GatewayNodeRow {
	labels := h.Labels
	if labels == nil {
		labels = []string{}
	}
	services := h.Services
	if services == nil {
		services = []HostService{}
	}
	return GatewayNodeRow{
		Hostname: h.Hostname,
		Addr:     h.Addr,
		Status:   h.Status,
		Labels:   labels,
		Services: services,
	}
}
