//go:build linux

package firewall

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hostwall/hostwall/internal/rules"
)

// tableName is hostwall's own nftables table. Owning a whole table makes
// the replace-wholesale semantics trivial: delete it, rebuild it, commit.
const tableName = "hostwall"

type nftablesBackend struct {
	conn  *nftables.Conn
	chain string
	iface string
}

func newNftablesBackend(opts Options) (*nftablesBackend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("open nftables: %w", err)
	}
	return &nftablesBackend{
		conn:  conn,
		chain: opts.chainName(),
		iface: opts.Iface,
	}, nil
}

// Apply rebuilds the whole hostwall table in a single netlink batch. The
// kernel commits the batch atomically, so there is no window where the
// chain is half built: either the previous ruleset or the new one is live.
func (b *nftablesBackend) Apply(list rules.RuleList) error {
	// Compile everything up front: once staging starts, an error would
	// leave half a batch pending on the connection for a later Flush to
	// commit by accident.
	compiled, err := compileRules(list)
	if err != nil {
		return err
	}

	if err := b.deleteStaleTable(); err != nil {
		return err
	}

	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   tableName,
	})
	ruleChain := b.conn.AddChain(&nftables.Chain{
		Name:  b.chain,
		Table: table,
	})

	for i, r := range list {
		b.conn.AddRule(&nftables.Rule{
			Table:    table,
			Chain:    ruleChain,
			Exprs:    compiled[i],
			UserData: []byte(r.Comment),
		})
	}

	// Base chains divert input and forward traffic into the managed chain.
	// Forward is what container-published ports actually traverse.
	for _, hook := range []*nftables.ChainHook{nftables.ChainHookInput, nftables.ChainHookForward} {
		b.addJumpChain(table, hook)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("commit nftables batch: %w", err)
	}
	log.Infof("applied %d rules to table %s chain %s", len(list), tableName, b.chain)
	return nil
}

func (b *nftablesBackend) addJumpChain(table *nftables.Table, hook *nftables.ChainHook) {
	polAccept := nftables.ChainPolicyAccept
	name := "input"
	if hook == nftables.ChainHookForward {
		name = "forward"
	}
	chain := b.conn.AddChain(&nftables.Chain{
		Name:     name,
		Table:    table,
		Hooknum:  hook,
		Priority: nftables.ChainPriorityFilter,
		Type:     nftables.ChainTypeFilter,
		Policy:   &polAccept,
	})

	var exprs []expr.Any
	if b.iface != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ifname(b.iface),
			},
		)
	}
	exprs = append(exprs, &expr.Verdict{
		Kind:  expr.VerdictJump,
		Chain: b.chain,
	})

	b.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: exprs,
	})
}

func (b *nftablesBackend) deleteStaleTable() error {
	tables, err := b.conn.ListTables()
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == tableName && t.Family == nftables.TableFamilyIPv4 {
			b.conn.DelTable(t)
		}
	}
	return nil
}

// EnsureChain stages the table and managed chain. A no-op if they exist.
func (b *nftablesBackend) EnsureChain() error {
	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   tableName,
	})
	b.conn.AddChain(&nftables.Chain{Name: b.chain, Table: table})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("ensure chain %s: %w", b.chain, err)
	}
	return nil
}

func (b *nftablesBackend) ClearChain() error {
	_, chain, err := b.lookup()
	if err != nil {
		return err
	}
	if chain == nil {
		return b.EnsureChain()
	}
	b.conn.FlushChain(chain)
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("flush chain %s: %w", b.chain, err)
	}
	return nil
}

func (b *nftablesBackend) AppendRule(r rules.Rule) error {
	table, chain, err := b.lookup()
	if err != nil {
		return err
	}
	if chain == nil {
		return fmt.Errorf("chain %s does not exist", b.chain)
	}
	exprs, err := compileRule(r)
	if err != nil {
		return err
	}
	b.conn.AddRule(&nftables.Rule{
		Table:    table,
		Chain:    chain,
		Exprs:    exprs,
		UserData: []byte(r.Comment),
	})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("append rule %q: %w", r, err)
	}
	return nil
}

// InstallJump is a separate operation for the iptables fallback; here the
// jump chains are part of every Apply batch, so there is nothing extra to
// install once a table exists.
func (b *nftablesBackend) InstallJump() error {
	_, chain, err := b.lookup()
	if err != nil {
		return err
	}
	if chain == nil {
		return fmt.Errorf("chain %s does not exist", b.chain)
	}
	return nil
}

func (b *nftablesBackend) QueryChain() ([]string, error) {
	table, chain, err := b.lookup()
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, fmt.Errorf("chain %s does not exist", b.chain)
	}
	list, err := b.conn.GetRules(table, chain)
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	out := make([]string, 0, len(list))
	for _, r := range list {
		if len(r.UserData) > 0 {
			out = append(out, string(r.UserData))
			continue
		}
		out = append(out, fmt.Sprintf("rule handle %d", r.Handle))
	}
	return out, nil
}

func (b *nftablesBackend) lookup() (*nftables.Table, *nftables.Chain, error) {
	tables, err := b.conn.ListTables()
	if err != nil {
		return nil, nil, fmt.Errorf("list tables: %w", err)
	}
	var table *nftables.Table
	for _, t := range tables {
		if t.Name == tableName && t.Family == nftables.TableFamilyIPv4 {
			table = t
			break
		}
	}
	if table == nil {
		return nil, nil, nil
	}
	chains, err := b.conn.ListChains()
	if err != nil {
		return nil, nil, fmt.Errorf("list chains: %w", err)
	}
	for _, c := range chains {
		if c.Table.Name == tableName && c.Name == b.chain {
			return table, c, nil
		}
	}
	return table, nil, nil
}

// compileRules translates a whole list, failing before any rule is staged.
func compileRules(list rules.RuleList) ([][]expr.Any, error) {
	compiled := make([][]expr.Any, len(list))
	for i, r := range list {
		exprs, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		compiled[i] = exprs
	}
	return compiled, nil
}

// compileRule translates one generated rule into nftables expressions.
func compileRule(r rules.Rule) ([]expr.Any, error) {
	var exprs []expr.Any

	if r.Match.CtState != "" {
		var stateBits uint32
		for _, s := range strings.Split(r.Match.CtState, ",") {
			switch strings.ToUpper(strings.TrimSpace(s)) {
			case "NEW":
				stateBits |= expr.CtStateBitNEW
			case "ESTABLISHED":
				stateBits |= expr.CtStateBitESTABLISHED
			case "RELATED":
				stateBits |= expr.CtStateBitRELATED
			default:
				return nil, fmt.Errorf("unknown conntrack state %q", s)
			}
		}
		exprs = append(exprs,
			&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           binaryutil.NativeEndian.PutUint32(stateBits),
				Xor:            []byte{0, 0, 0, 0},
			},
			&expr.Cmp{
				Op:       expr.CmpOpNeq,
				Register: 1,
				Data:     []byte{0, 0, 0, 0},
			},
		)
	}

	if r.Match.Protocol != "" {
		var proto byte
		switch r.Match.Protocol {
		case "tcp":
			proto = unix.IPPROTO_TCP
		case "udp":
			proto = unix.IPPROTO_UDP
		default:
			return nil, fmt.Errorf("unsupported protocol %q", r.Match.Protocol)
		}
		exprs = append(exprs,
			// Protocol field of the IPv4 header.
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       9,
				Len:          1,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     []byte{proto},
			},
		)
	}

	if r.Match.Source != "" {
		_, ipNet, err := net.ParseCIDR(r.Match.Source)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", r.Match.Source, err)
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("source %q: not an IPv4 network", r.Match.Source)
		}
		exprs = append(exprs,
			// Source address field of the IPv4 header, masked to the prefix.
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       12,
				Len:          4,
			},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           ipNet.Mask,
				Xor:            []byte{0, 0, 0, 0},
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ip4,
			},
		)
	}

	if r.Match.Port != 0 {
		exprs = append(exprs,
			// Destination port of the transport header.
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2,
				Len:          2,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.BigEndian.PutUint16(r.Match.Port),
			},
		)
	}

	switch r.Action {
	case rules.ActionAccept:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case rules.ActionDrop:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	default:
		return nil, fmt.Errorf("unsupported action %q", r.Action)
	}
	return exprs, nil
}

// ifname pads an interface name to the 16 byte, null terminated form the
// kernel compares against.
func ifname(n string) []byte {
	b := make([]byte, 16)
	copy(b, n+"\x00")
	return b
}
