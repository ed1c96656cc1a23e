package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Snapshot is the small persisted configuration the boot-time reapply path
// runs from: exactly the two scalars rule generation needs. It is written
// whenever rules are applied interactively, so a reboot reproduces the
// last configured state and nothing else.
type Snapshot struct {
	Ports            string `yaml:"ports"`
	TrustedSSHSource string `yaml:"trusted_ssh_source,omitempty"`
}

// Save writes the snapshot, creating the parent directory if needed.
func (s Snapshot) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads and validates a snapshot. Any malformed content fails
// the load; the boot path never applies a patched-up rule set.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	cfg := Config{Ports: s.Ports, TrustedSSHSource: s.TrustedSSHSource}
	if _, _, err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return &s, nil
}
