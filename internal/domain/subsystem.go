package domain

import (
	"encoding/json"
	"fmt"
)

// Subsystem authentication statuses.
const (
	AuthNone           = "No authentication"
	AuthUnidirectional = "Unidirectional"
	AuthBidirectional  = "Bi-directional"
)

// Subsystem is an NVMe-oF subsystem of a gateway group.
type Subsystem struct {
	NQN            string `json:"nqn"`
	SerialNumber   string `json:"serial_number"`
	ModelNumber    string `json:"model_number"`
	MinCntlID      int    `json:"min_cntlid"`
	MaxCntlID      int    `json:"max_cntlid"`
	NamespaceCount int    `json:"namespace_count"`
	Subtype        string `json:"subtype"`
	MaxNamespaces  int    `json:"max_namespaces"`
	AllowAnyHost   bool   `json:"allow_any_host,omitempty"`
	EnableHA       bool   `json:"enable_ha,omitempty"`
	GwGroup        string `json:"gw_group,omitempty"`
	InitiatorCount int    `json:"initiator_count,omitempty"`
	PSK            string `json:"psk,omitempty"`
}

// Initiator is a host allowed to connect to a subsystem.
type Initiator struct {
	NQN       string `json:"nqn"`
	DhchapKey string `json:"dhchap_key,omitempty"`
}

// SubsystemRow is a subsystem listing view row.
type SubsystemRow struct {
	Subsystem
	Auth  string `json:"auth"`
	Hosts int    `json:"hosts"`
}

// SubsystemAuthStatus classifies a subsystem: a PSK means bi-directional,
// any initiator with a DH-HMAC-CHAP key means unidirectional.
func SubsystemAuthStatus(s Subsystem, initiators []Initiator) string {
	if s.PSK != "" {
		return AuthBidirectional
	}
	for _, i := range initiators {
		if i.DhchapKey != "" {
			return AuthUnidirectional
		}
	}
	return AuthNone
}

// SubsystemList decodes either a JSON array of subsystems or a single object.
type SubsystemList []Subsystem

func (l *SubsystemList) UnmarshalJSON(b []byte) error {
	var many []Subsystem
	if err := json.Unmarshal(b, &many); err == nil {
		*l = many
		return nil
	}
	var one Subsystem
	if err := json.Unmarshal(b, &one); err != nil {
		return fmt.Errorf("failed to decode subsystems: %w", err)
	}
	*l = SubsystemList{one}
	return nil
}

// InitiatorList decodes either a JSON array of initiators or {"hosts": [...]}.
type InitiatorList []Initiator

func (l *InitiatorList) UnmarshalJSON(b []byte) error {
	var many []Initiator
	if err := json.Unmarshal(b, &many); err == nil {
		*l = many
		return nil
	}
	var wrapped struct {
		Hosts []Initiator `json:"hosts"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("failed to decode initiators: %w", err)
	}
	*l = wrapped.Hosts
	return nil
}
