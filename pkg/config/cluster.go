package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PeerSpec describes one member of the static peer set named in a cluster
// configuration file.
type PeerSpec struct {
	PeerID string `yaml:"peer_id"`
	IP     string `yaml:"ip"`
	Port   int    `yaml:"port"`
}

// Address returns the dial address for this peer.
func (p PeerSpec) Address() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// ClusterConfig is the enumerated set of options the consensus core accepts:
// the static peer list and which entry in it is this process. There are no
// other tunable knobs at the core level; election, vote, and heartbeat
// durations are compile-time constants in internal/consensus.
type ClusterConfig struct {
	Peers     []PeerSpec `yaml:"peers"`
	SelfIndex int        `yaml:"self_index"`
}

// LoadClusterConfig reads and validates a cluster configuration file.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster config: %w", err)
	}

	var cfg ClusterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse cluster config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that self_index names a real entry in peers, and that peer
// ids are unique.
func (c *ClusterConfig) Validate() error {
	if c.SelfIndex < 0 || c.SelfIndex >= len(c.Peers) {
		return fmt.Errorf("self_index %d out of range for %d configured peers", c.SelfIndex, len(c.Peers))
	}

	seen := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.PeerID == "" {
			return fmt.Errorf("peer at index with empty peer_id")
		}
		if seen[p.PeerID] {
			return fmt.Errorf("duplicate peer_id %q", p.PeerID)
		}
		seen[p.PeerID] = true
	}

	return nil
}

// Self returns the PeerSpec for this node.
func (c *ClusterConfig) Self() PeerSpec {
	return c.Peers[c.SelfIndex]
}

// Others returns every peer except self, in their configured order.
func (c *ClusterConfig) Others() []PeerSpec {
	out := make([]PeerSpec, 0, len(c.Peers)-1)
	for i, p := range c.Peers {
		if i != c.SelfIndex {
			out = append(out, p)
		}
	}
	return out
}
