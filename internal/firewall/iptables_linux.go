//go:build linux

package firewall

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
	log "github.com/sirupsen/logrus"

	"github.com/hostwall/hostwall/internal/rules"
)

const filterTable = "filter"

// dockerUserChain is consulted by the docker daemon before its own NAT
// rules, which is what makes published ports filterable at all.
const dockerUserChain = "DOCKER-USER"

type iptablesBackend struct {
	ipt   *iptables.IPTables
	chain string
	iface string
}

func newIptablesBackend(opts Options) (*iptablesBackend, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("iptables is not installed or not supported: %w", err)
	}
	return &iptablesBackend{
		ipt:   ipt,
		chain: opts.chainName(),
		iface: opts.Iface,
	}, nil
}

func (b *iptablesBackend) EnsureChain() error {
	exists, err := b.ipt.ChainExists(filterTable, b.chain)
	if err != nil {
		return fmt.Errorf("check chain %s: %w", b.chain, err)
	}
	if exists {
		return nil
	}
	if err := b.ipt.NewChain(filterTable, b.chain); err != nil {
		return fmt.Errorf("create chain %s: %w", b.chain, err)
	}
	return nil
}

// ClearChain flushes the managed chain, creating it first if needed.
func (b *iptablesBackend) ClearChain() error {
	if err := b.ipt.ClearChain(filterTable, b.chain); err != nil {
		return fmt.Errorf("clear chain %s: %w", b.chain, err)
	}
	return nil
}

func (b *iptablesBackend) AppendRule(r rules.Rule) error {
	if err := b.ipt.Append(filterTable, b.chain, r.Spec()...); err != nil {
		return fmt.Errorf("append rule %q: %w", r, err)
	}
	return nil
}

// InstallJump diverts INPUT and, when present, DOCKER-USER into the managed
// chain. The jump goes at position 1: docker seeds DOCKER-USER with an
// unconditional RETURN, so an appended jump would never be reached.
func (b *iptablesBackend) InstallJump() error {
	spec := b.jumpSpec()

	if err := b.ipt.InsertUnique(filterTable, "INPUT", 1, spec...); err != nil {
		return fmt.Errorf("jump from INPUT: %w", err)
	}

	exists, err := b.ipt.ChainExists(filterTable, dockerUserChain)
	if err != nil {
		return fmt.Errorf("check chain %s: %w", dockerUserChain, err)
	}
	if !exists {
		log.Debugf("chain %s not present, docker integration skipped", dockerUserChain)
		return nil
	}
	if err := b.ipt.InsertUnique(filterTable, dockerUserChain, 1, spec...); err != nil {
		return fmt.Errorf("jump from %s: %w", dockerUserChain, err)
	}
	return nil
}

func (b *iptablesBackend) jumpSpec() []string {
	var spec []string
	if b.iface != "" {
		spec = append(spec, "-i", b.iface)
	}
	return append(spec, "-j", b.chain)
}

func (b *iptablesBackend) QueryChain() ([]string, error) {
	listing, err := b.ipt.List(filterTable, b.chain)
	if err != nil {
		return nil, fmt.Errorf("list chain %s: %w", b.chain, err)
	}
	// The first line is the chain declaration, not a rule.
	var out []string
	for _, line := range listing {
		if line == "-N "+b.chain {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// Apply replaces the managed chain with list. iptables has no transaction,
// so this is the documented clear-then-append fallback; the chain is only
// reachable through the jump rules, installed last, which keeps a half
// built chain from filtering live traffic on first setup.
func (b *iptablesBackend) Apply(list rules.RuleList) error {
	if err := b.ClearChain(); err != nil {
		return err
	}
	for _, r := range list {
		if err := b.AppendRule(r); err != nil {
			return err
		}
	}
	if err := b.InstallJump(); err != nil {
		return err
	}
	log.Infof("applied %d rules to chain %s", len(list), b.chain)
	return nil
}
