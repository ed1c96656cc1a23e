package rules

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SSHPort is deliberately kept out of the general allowlist. The only way
// to open it is an explicit trusted source.
const SSHPort = 22

const establishedStates = "RELATED,ESTABLISHED"

var (
	// ErrInvalidPort indicates a non-numeric or out-of-range value in the
	// configured port list.
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyPortSet indicates that no ports were supplied at all.
	ErrEmptyPortSet = errors.New("empty port set")
)

// PortSet is an ordered, deduplicated set of TCP ports.
type PortSet []uint16

// ParsePortSet parses a comma-separated port list. Every entry must be an
// integer in [1, 65535]; a single bad entry fails the whole set. There is
// no partial result: callers either get a fully valid set or an error.
func ParsePortSet(csv string) (PortSet, error) {
	var set PortSet
	seen := make(map[uint16]bool)
	for _, field := range strings.Split(csv, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, err := strconv.ParseUint(field, 10, 16)
		if err != nil || value == 0 {
			return nil, fmt.Errorf("port %q: %w", field, ErrInvalidPort)
		}
		port := uint16(value)
		if seen[port] {
			continue
		}
		seen[port] = true
		set = append(set, port)
	}
	if len(set) == 0 {
		return nil, ErrEmptyPortSet
	}
	return set, nil
}

// Contains reports whether port is a member of the set.
func (s PortSet) Contains(port uint16) bool {
	for _, p := range s {
		if p == port {
			return true
		}
	}
	return false
}

// String renders the set in its original order, comma-separated.
func (s PortSet) String() string {
	fields := make([]string, len(s))
	for i, p := range s {
		fields[i] = strconv.Itoa(int(p))
	}
	return strings.Join(fields, ",")
}

// TrustedSource is a network range allowed to reach the SSH port.
type TrustedSource struct {
	cidr string
}

// ParseTrustedSource validates the shape of a CIDR string. It does not
// check routability. An empty string means no trusted source.
func ParseTrustedSource(cidr string) (*TrustedSource, error) {
	cidr = strings.TrimSpace(cidr)
	if cidr == "" {
		return nil, nil
	}
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return nil, fmt.Errorf("trusted source %q: %w", cidr, err)
	}
	return &TrustedSource{cidr: cidr}, nil
}

func (t *TrustedSource) String() string {
	if t == nil {
		return ""
	}
	return t.cidr
}

// Generate builds the allowlist chain for the given inputs. The order is
// fixed and first-match sensitive:
//
//	1. accept RELATED,ESTABLISHED (stateful fast path)
//	2. accept tcp/22 from the trusted source, if one is set
//	3. accept tcp/<port> for every port in the set, set order
//	4. drop everything else
//
// Port 22 never enters step 3, even when listed explicitly; the trusted
// source rule is the only way SSH gets through. Generation is pure and
// deterministic: identical inputs always yield an identical list.
func Generate(ports PortSet, trusted *TrustedSource) (RuleList, error) {
	if len(ports) == 0 {
		return nil, ErrEmptyPortSet
	}

	list := RuleList{
		{
			Action:  ActionAccept,
			Match:   Match{CtState: establishedStates},
			Comment: "hostwall: established",
		},
	}

	if trusted != nil {
		list = append(list, Rule{
			Action: ActionAccept,
			Match: Match{
				Protocol: "tcp",
				Port:     SSHPort,
				Source:   trusted.String(),
			},
			Comment: "hostwall: trusted ssh",
		})
	}

	for _, port := range ports {
		if port == SSHPort {
			continue
		}
		list = append(list, Rule{
			Action:  ActionAccept,
			Match:   Match{Protocol: "tcp", Port: port},
			Comment: fmt.Sprintf("hostwall: allow %d", port),
		})
	}

	list = append(list, Rule{
		Action:  ActionDrop,
		Comment: "hostwall: default drop",
	})
	return list, nil
}
