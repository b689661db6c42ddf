package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads an inventory file.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for filePath.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads and parses the inventory file. ${VAR} references are expanded
// from the environment before parsing.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return File{}, fmt.Errorf("failed to read inventory file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse inventory yaml: %w", err)
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) validate() error {
	seen := make(map[string]struct{}, len(f.Hosts))
	for i, h := range f.Hosts {
		if h.Hostname == "" {
			return fmt.Errorf("inventory host #%d has no hostname", i)
		}
		if _, dup := seen[h.Hostname]; dup {
			return fmt.Errorf("inventory host %q declared twice", h.Hostname)
		}
		seen[h.Hostname] = struct{}{}
	}
	for _, src := range f.Sources {
		for _, s := range src.Services {
			if s.Name() == "" {
				return fmt.Errorf("inventory source %q has a service without name", src.Name)
			}
		}
	}
	return nil
}
