package inventory

import "github.com/MrSnakeDoc/clusterview/internal/domain"

// File is the root of an inventory YAML document.
//
//	hosts:
//	  - hostname: ceph-node-00
//	    addr: 10.0.0.10
//	    labels: [_admin, nvmeof]
//	sources:
//	  - name: orchestrator
//	    services:
//	      - service_type: nvmeof
//	        service_id: rbd.gw1
//	        placement: {hosts: [ceph-node-00]}
//	        spec: {group: gw1, pool: rbd}
type File struct {
	Hosts   []domain.Host `yaml:"hosts"`
	Sources []GroupSource `yaml:"sources"`
}

// GroupSource is one list of gateway group specs, as returned by one
// orchestrator backend.
type GroupSource struct {
	Name     string               `yaml:"name"`
	Services []domain.ServiceSpec `yaml:"services"`
}
