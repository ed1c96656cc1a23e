package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is the verdict a rule applies to matching packets.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionDrop   Action = "DROP"
)

// Match describes the packet selector of a single rule. Zero values mean
// "any": a Match with no port and no source matches every packet.
type Match struct {
	Protocol string
	Port     uint16
	Source   string
	CtState  string
}

// Rule pairs a selector with a verdict.
type Rule struct {
	Action  Action
	Match   Match
	Comment string
}

// RuleList is an ordered chain evaluated first-match. Order is load-bearing:
// specific accepts must precede the terminal drop.
type RuleList []Rule

// Spec converts the rule into iptables argument form. The same spec is used
// for live application and for the persisted reapply script, so both paths
// produce identical chains.
func (r Rule) Spec() []string {
	var spec []string
	if r.Match.CtState != "" {
		spec = append(spec, "-m", "conntrack", "--ctstate", r.Match.CtState)
	}
	if r.Match.Protocol != "" {
		spec = append(spec, "-p", r.Match.Protocol)
	}
	if r.Match.Source != "" {
		spec = append(spec, "-s", r.Match.Source)
	}
	if r.Match.Port != 0 {
		spec = append(spec, "--dport", strconv.Itoa(int(r.Match.Port)))
	}
	spec = append(spec, "-j", string(r.Action))
	if r.Comment != "" {
		spec = append(spec, "-m", "comment", "--comment", r.Comment)
	}
	return spec
}

func (r Rule) String() string {
	return strings.Join(r.Spec(), " ")
}

// String renders the chain one rule per line, in evaluation order.
func (l RuleList) String() string {
	lines := make([]string, len(l))
	for i, r := range l {
		lines[i] = fmt.Sprintf("%d: %s", i+1, r)
	}
	return strings.Join(lines, "\n")
}
