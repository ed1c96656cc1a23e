package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/hostwall/hostwall/internal/rules"
)

// Defaults. The port list matches the stock web + console surface of a
// freshly provisioned host.
const (
	DefaultPorts        = "80,443,9090"
	DefaultBackend      = "iptables"
	DefaultChain        = "HOSTWALL"
	DefaultScriptPath   = "/usr/local/sbin/hostwall-reapply"
	DefaultUnitPath     = "/etc/systemd/system/hostwall.service"
	DefaultSnapshotPath = "/etc/hostwall/state.yaml"
)

// Config is the full interactive configuration, layered from defaults,
// config file, environment and flags by viper.
type Config struct {
	// Ports is the comma-separated TCP allowlist.
	Ports string `mapstructure:"ports"`

	// TrustedSSHSource optionally opens tcp/22 to one CIDR. Empty keeps
	// SSH closed.
	TrustedSSHSource string `mapstructure:"trusted_ssh_source"`

	// Backend selects the packet filter implementation.
	Backend string `mapstructure:"backend"`

	// Chain is the managed chain name.
	Chain string `mapstructure:"chain"`

	// Iface confines filtering to one ingress interface when set.
	Iface string `mapstructure:"iface"`

	ScriptPath   string `mapstructure:"script_path"`
	UnitPath     string `mapstructure:"unit_path"`
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ports", DefaultPorts)
	v.SetDefault("trusted_ssh_source", "")
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("chain", DefaultChain)
	v.SetDefault("iface", "")
	v.SetDefault("script_path", DefaultScriptPath)
	v.SetDefault("unit_path", DefaultUnitPath)
	v.SetDefault("snapshot_path", DefaultSnapshotPath)
}

// Load unmarshals and validates the effective configuration. Validation is
// all-or-nothing: any bad value fails the load, nothing is patched up.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := LoadBase(v)
	if err != nil {
		return nil, err
	}
	if _, _, err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBase unmarshals the configuration without validating the rule
// inputs. The boot path uses it: its ports and trusted source come from
// the snapshot, so a stale interactive value must not block a reapply.
func LoadBase(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Resolve parses the two rule-generation inputs out of the config.
func (c *Config) Resolve() (rules.PortSet, *rules.TrustedSource, error) {
	ports, err := rules.ParsePortSet(c.Ports)
	if err != nil {
		return nil, nil, err
	}
	trusted, err := rules.ParseTrustedSource(c.TrustedSSHSource)
	if err != nil {
		return nil, nil, err
	}
	return ports, trusted, nil
}
