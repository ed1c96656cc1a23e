package firewall

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hostwall/hostwall/internal/rules"
)

// DefaultChain is the name of the managed chain. Everything hostwall owns
// lives here; the system chains only ever get a jump into it.
const DefaultChain = "HOSTWALL"

const (
	BackendIptables = "iptables"
	BackendNftables = "nftables"
)

// ErrUnsupported is returned when no firewall backend exists for the
// current platform.
var ErrUnsupported = errors.New("no firewall backend on this platform")

// Backend is the control surface over the live packet filter. Apply must
// treat the managed chain as a value to be replaced wholesale: reset first,
// then append, never patch. A failed Apply must not leave a partially
// populated chain presented as complete.
type Backend interface {
	// EnsureChain creates the managed chain if it does not exist yet.
	EnsureChain() error

	// ClearChain flushes all rules from the managed chain.
	ClearChain() error

	// AppendRule appends a single rule at the end of the managed chain.
	AppendRule(r rules.Rule) error

	// InstallJump diverts inbound and forwarded traffic into the managed
	// chain so container-published ports are covered too.
	InstallJump() error

	// QueryChain returns the live rules of the managed chain, one line per
	// rule, for verification and status output.
	QueryChain() ([]string, error)

	// Apply replaces the managed chain with the given list. Backends that
	// can do so atomically (nftables) commit everything in one transaction;
	// others fall back to clear-then-append.
	Apply(list rules.RuleList) error
}

// Options select and scope a backend.
type Options struct {
	// Chain is the managed chain name. Defaults to DefaultChain.
	Chain string

	// Iface, when set, confines the jump rules to traffic entering on this
	// interface. Without it the drop policy would also swallow forwarded
	// egress from local containers.
	Iface string
}

var ifaceNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,15}$`)

// ValidateIface checks that name is a plausible network interface name.
// Empty is allowed and means "all interfaces".
func ValidateIface(name string) error {
	if name == "" {
		return nil
	}
	if !ifaceNameRe.MatchString(name) {
		return fmt.Errorf("invalid interface name %q", name)
	}
	return nil
}

// iptables caps chain names at 28 characters.
var chainNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,28}$`)

// ValidateChain checks that name is usable as a chain name everywhere it
// ends up: iptables arguments, nftables objects and the rendered reapply
// script. Empty is rejected; callers wanting the default pass nothing and
// rely on Options.chainName.
func ValidateChain(name string) error {
	if !chainNameRe.MatchString(name) {
		return fmt.Errorf("invalid chain name %q", name)
	}
	return nil
}

func (o Options) chainName() string {
	if o.Chain == "" {
		return DefaultChain
	}
	return o.Chain
}
