//go:build linux

package firewall

import "fmt"

// New returns the backend named by kind, scoped by opts.
func New(kind string, opts Options) (Backend, error) {
	if err := ValidateIface(opts.Iface); err != nil {
		return nil, err
	}
	if err := ValidateChain(opts.chainName()); err != nil {
		return nil, err
	}
	switch kind {
	case "", BackendIptables:
		return newIptablesBackend(opts)
	case BackendNftables:
		return newNftablesBackend(opts)
	default:
		return nil, fmt.Errorf("unknown firewall backend %q", kind)
	}
}
