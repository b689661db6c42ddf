package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GatewayServicePrefix is the service_id prefix of NVMe-oF gateway groups.
const GatewayServicePrefix = "nvmeof."

// Placement lists the hosts a service is pinned to.
//
// A nil Hosts is omitted on encoding, an empty one is sent as "hosts": [].
// The orchestrator reads a placement without hosts as its default placement,
// so removing the last member must keep the key.
type Placement struct {
	Hosts []string `json:"hosts" yaml:"hosts"`
	Count *int     `json:"count,omitempty" yaml:"count,omitempty"`
	Label string   `json:"label,omitempty" yaml:"label,omitempty"`
}

func (p Placement) MarshalJSON() ([]byte, error) {
	out := struct {
		Hosts *[]string `json:"hosts,omitempty"`
		Count *int      `json:"count,omitempty"`
		Label string    `json:"label,omitempty"`
	}{Count: p.Count, Label: p.Label}
	if p.Hosts != nil {
		out.Hosts = &p.Hosts
	}
	return json.Marshal(out)
}

// ServiceSpec is the orchestrator service specification of a gateway group.
//
// The management API expects full-document replacement on update, so fields
// this package does not model are preserved verbatim through a JSON round trip.
type ServiceSpec struct {
	ServiceType string         `json:"service_type,omitempty" yaml:"service_type"`
	ServiceID   string         `json:"service_id,omitempty" yaml:"service_id"`
	ServiceName string         `json:"service_name,omitempty" yaml:"service_name"`
	Placement   *Placement     `json:"placement,omitempty" yaml:"placement"`
	Spec        map[string]any `json:"spec,omitempty" yaml:"spec"`
	Unmanaged   bool           `json:"unmanaged,omitempty" yaml:"unmanaged"`

	// Status and Events are transient orchestrator fields. They are never
	// submitted back.
	Status json.RawMessage `json:"status,omitempty" yaml:"-"`
	Events json.RawMessage `json:"events,omitempty" yaml:"-"`

	extra map[string]json.RawMessage
}

var knownSpecKeys = []string{
	"service_type", "service_id", "service_name", "placement", "spec", "unmanaged", "status", "events",
}

type plainServiceSpec ServiceSpec

// UnmarshalJSON decodes the modelled fields and keeps everything else aside.
func (s *ServiceSpec) UnmarshalJSON(b []byte) error {
	var p plainServiceSpec
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownSpecKeys {
		delete(raw, k)
	}
	*s = ServiceSpec(p)
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

// MarshalJSON encodes the modelled fields plus the preserved unknown ones.
func (s ServiceSpec) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(plainServiceSpec(s))
	if err != nil || len(s.extra) == 0 {
		return b, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Group returns spec.group, or "" when absent.
func (s ServiceSpec) Group() string {
	if g, ok := s.Spec["group"].(string); ok {
		return g
	}
	return ""
}

// Name returns the service name used for updates.
func (s ServiceSpec) Name() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	if s.ServiceType != "" && s.ServiceID != "" && !strings.HasPrefix(s.ServiceID, s.ServiceType+".") {
		return s.ServiceType + "." + s.ServiceID
	}
	return s.ServiceID
}

// PlacementHosts returns placement.hosts, falling back to spec.placement.hosts.
// A present but empty placement.hosts list wins over the fallback.
func (s ServiceSpec) PlacementHosts() []string {
	if s.Placement != nil && s.Placement.Hosts != nil {
		return s.Placement.Hosts
	}
	return nestedPlacementHosts(s.Spec)
}

func nestedPlacementHosts(spec map[string]any) []string {
	p, ok := spec["placement"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := p["hosts"].([]any)
	if !ok {
		return nil
	}
	hosts := make([]string, 0, len(raw))
	for _, h := range raw {
		if name, ok := h.(string); ok {
			hosts = append(hosts, name)
		}
	}
	return hosts
}

// Matches reports whether the spec belongs to the named gateway group.
//
// Three rules are accepted: spec.group equals the name, service_id equals
// "nvmeof.<name>", or service_id ends with ".<name>".
func (s ServiceSpec) Matches(groupName string) bool {
	if groupName == "" {
		return false
	}
	return s.Group() == groupName ||
		s.ServiceID == GatewayServicePrefix+groupName ||
		strings.HasSuffix(s.ServiceID, "."+groupName)
}

// Clone returns a deep copy of the spec.
func (s ServiceSpec) Clone() (ServiceSpec, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return ServiceSpec{}, fmt.Errorf("failed to marshal service spec: %w", err)
	}
	var out ServiceSpec
	if err := json.Unmarshal(b, &out); err != nil {
		return ServiceSpec{}, fmt.Errorf("failed to unmarshal service spec: %w", err)
	}
	return out, nil
}

// WithoutHost returns a copy ready for submission with hostname removed from
// the placement list and transient fields stripped.
func (s ServiceSpec) WithoutHost(hostname string) (ServiceSpec, error) {
	out, err := s.Clone()
	if err != nil {
		return ServiceSpec{}, err
	}
	kept := make([]string, 0, len(s.PlacementHosts()))
	for _, h := range s.PlacementHosts() {
		if h != hostname {
			kept = append(kept, h)
		}
	}
	out.setPlacementHosts(kept)
	out.stripTransient()
	return out, nil
}

// WithHosts returns a copy ready for submission with hostnames appended to
// the placement list (duplicates skipped) and transient fields stripped.
func (s ServiceSpec) WithHosts(hostnames []string) (ServiceSpec, error) {
	out, err := s.Clone()
	if err != nil {
		return ServiceSpec{}, err
	}
	current := s.PlacementHosts()
	seen := make(map[string]bool, len(current)+len(hostnames))
	merged := make([]string, 0, len(current)+len(hostnames))
	for _, h := range append(append([]string{}, current...), hostnames...) {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		merged = append(merged, h)
	}
	out.setPlacementHosts(merged)
	out.stripTransient()
	return out, nil
}

// setPlacementHosts writes to whichever placement list the spec uses.
func (s *ServiceSpec) setPlacementHosts(hosts []string) {
	if s.Placement == nil && nestedPlacementHosts(s.Spec) != nil {
		p := s.Spec["placement"].(map[string]any)
		list := make([]any, len(hosts))
		for i, h := range hosts {
			list[i] = h
		}
		p["hosts"] = list
		return
	}
	if s.Placement == nil {
		s.Placement = &Placement{}
	}
	s.Placement.Hosts = hosts
}

func (s *ServiceSpec) stripTransient() {
	s.Status = nil
	s.Events = nil
}

// UsedHostnames returns the union of placement hosts across every group of
// every source.
func UsedHostnames(groups [][]ServiceSpec) map[string]struct{} {
	used := make(map[string]struct{})
	for _, source := range groups {
		for _, g := range source {
			for _, h := range g.PlacementHosts() {
				used[h] = struct{}{}
			}
		}
	}
	return used
}

// FlattenGroups merges the per-source group lists into one list.
func FlattenGroups(groups [][]ServiceSpec) []ServiceSpec {
	var out []ServiceSpec
	for _, source := range groups {
		out = append(out, source...)
	}
	return out
}

// FindGroup returns the first spec matching groupName.
func FindGroup(groups [][]ServiceSpec, groupName string) (ServiceSpec, bool) {
	for _, g := range FlattenGroups(groups) {
		if g.Matches(groupName) {
			return g, true
		}
	}
	return ServiceSpec{}, false
}

// AvailableHosts returns hosts whose hostname is not in used, in input order.
func AvailableHosts(hosts []Host, used map[string]struct{}) []Host {
	out := make([]Host, 0, len(hosts))
	for _, h := range hosts {
		if _, taken := used[h.Hostname]; !taken {
			out = append(out, h)
		}
	}
	return out
}

// MemberHosts returns hosts placed on the given group, in input order.
func MemberHosts(hosts []Host, group ServiceSpec) []Host {
	members := make(map[string]struct{})
	for _, h := range group.PlacementHosts() {
		members[h] = struct{}{}
	}
	out := make([]Host, 0, len(members))
	for _, h := range hosts {
		if _, ok := members[h.Hostname]; ok {
			out = append(out, h)
		}
	}
	return out
}
