package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortSet(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  PortSet
		err   error
	}{
		{name: "defaults", input: "80,443,9090", want: PortSet{80, 443, 9090}},
		{name: "whitespace", input: " 80 , 443 ", want: PortSet{80, 443}},
		{name: "dedup keeps first position", input: "443,80,443", want: PortSet{443, 80}},
		{name: "single", input: "8080", want: PortSet{8080}},
		{name: "max port", input: "65535", want: PortSet{65535}},
		{name: "non-numeric", input: "80,abc", err: ErrInvalidPort},
		{name: "negative", input: "-1", err: ErrInvalidPort},
		{name: "zero", input: "0", err: ErrInvalidPort},
		{name: "out of range", input: "65536", err: ErrInvalidPort},
		{name: "fractional", input: "80.5", err: ErrInvalidPort},
		{name: "empty", input: "", err: ErrEmptyPortSet},
		{name: "only separators", input: ",,", err: ErrEmptyPortSet},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePortSet(tc.input)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTrustedSource(t *testing.T) {
	trusted, err := ParseTrustedSource("203.0.113.10/32")
	require.NoError(t, err)
	require.NotNil(t, trusted)
	assert.Equal(t, "203.0.113.10/32", trusted.String())

	trusted, err = ParseTrustedSource("")
	require.NoError(t, err)
	assert.Nil(t, trusted)
	assert.Equal(t, "", trusted.String())

	_, err = ParseTrustedSource("not-a-cidr")
	require.Error(t, err)

	// A bare address without a prefix length is not a CIDR.
	_, err = ParseTrustedSource("203.0.113.10")
	require.Error(t, err)
}

func TestGenerateWorkedExample(t *testing.T) {
	ports, err := ParsePortSet("80,443,9090")
	require.NoError(t, err)
	trusted, err := ParseTrustedSource("203.0.113.10/32")
	require.NoError(t, err)

	list, err := Generate(ports, trusted)
	require.NoError(t, err)
	require.Len(t, list, 6)

	assert.Equal(t, ActionAccept, list[0].Action)
	assert.Equal(t, "RELATED,ESTABLISHED", list[0].Match.CtState)

	assert.Equal(t, ActionAccept, list[1].Action)
	assert.Equal(t, uint16(22), list[1].Match.Port)
	assert.Equal(t, "203.0.113.10/32", list[1].Match.Source)
	assert.Equal(t, "tcp", list[1].Match.Protocol)

	for i, port := range []uint16{80, 443, 9090} {
		r := list[2+i]
		assert.Equal(t, ActionAccept, r.Action)
		assert.Equal(t, port, r.Match.Port)
		assert.Equal(t, "tcp", r.Match.Protocol)
		assert.Empty(t, r.Match.Source)
	}

	last := list[len(list)-1]
	assert.Equal(t, ActionDrop, last.Action)
	assert.Equal(t, Match{}, last.Match)
}

func TestGenerateExactlyOneTerminalDrop(t *testing.T) {
	for _, csv := range []string{"80", "80,443", "1,2,3,4,5", "65535"} {
		ports, err := ParsePortSet(csv)
		require.NoError(t, err)
		list, err := Generate(ports, nil)
		require.NoError(t, err)

		drops := 0
		for _, r := range list {
			if r.Action == ActionDrop {
				drops++
			}
		}
		assert.Equal(t, 1, drops, "ports %s", csv)
		assert.Equal(t, ActionDrop, list[len(list)-1].Action, "ports %s", csv)
	}
}

func TestGeneratePortBijection(t *testing.T) {
	ports, err := ParsePortSet("8080,443,53")
	require.NoError(t, err)
	list, err := Generate(ports, nil)
	require.NoError(t, err)

	allowed := make(map[uint16]int)
	for _, r := range list {
		if r.Action == ActionAccept && r.Match.Port != 0 {
			allowed[r.Match.Port]++
		}
	}
	require.Len(t, allowed, 3)
	for _, p := range ports {
		assert.Equal(t, 1, allowed[p], "port %d", p)
	}
}

func TestGenerateSSHNeverInGeneralAllowlist(t *testing.T) {
	ports, err := ParsePortSet("22,80")
	require.NoError(t, err)

	// Without a trusted source there must be no tcp/22 rule at all, even
	// though 22 was listed explicitly.
	list, err := Generate(ports, nil)
	require.NoError(t, err)
	for _, r := range list {
		assert.NotEqual(t, uint16(SSHPort), r.Match.Port)
	}

	// With a trusted source there is exactly one tcp/22 rule, scoped to
	// the source, and it precedes the terminal drop.
	trusted, err := ParseTrustedSource("198.51.100.0/24")
	require.NoError(t, err)
	list, err = Generate(ports, trusted)
	require.NoError(t, err)

	var sshRules []int
	for i, r := range list {
		if r.Match.Port == SSHPort {
			sshRules = append(sshRules, i)
			assert.Equal(t, "198.51.100.0/24", r.Match.Source)
			assert.Equal(t, ActionAccept, r.Action)
		}
	}
	require.Len(t, sshRules, 1)
	assert.Less(t, sshRules[0], len(list)-1)
}

func TestGenerateDeterministic(t *testing.T) {
	ports, err := ParsePortSet("80,443,9090")
	require.NoError(t, err)
	trusted, err := ParseTrustedSource("203.0.113.10/32")
	require.NoError(t, err)

	first, err := Generate(ports, trusted)
	require.NoError(t, err)
	second, err := Generate(ports, trusted)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.String(), second.String())
}

func TestGenerateEmptySet(t *testing.T) {
	_, err := Generate(nil, nil)
	require.ErrorIs(t, err, ErrEmptyPortSet)
}

func TestRuleSpec(t *testing.T) {
	r := Rule{
		Action: ActionAccept,
		Match:  Match{Protocol: "tcp", Port: 443},
	}
	assert.Equal(t, []string{"-p", "tcp", "--dport", "443", "-j", "ACCEPT"}, r.Spec())

	r = Rule{Action: ActionDrop}
	assert.Equal(t, []string{"-j", "DROP"}, r.Spec())

	r = Rule{
		Action:  ActionAccept,
		Match:   Match{Protocol: "tcp", Port: 22, Source: "203.0.113.10/32"},
		Comment: "trusted ssh",
	}
	assert.Equal(t,
		[]string{"-p", "tcp", "-s", "203.0.113.10/32", "--dport", "22", "-j", "ACCEPT", "-m", "comment", "--comment", "trusted ssh"},
		r.Spec())
}

func TestPortSetString(t *testing.T) {
	ports, err := ParsePortSet("9090, 80")
	require.NoError(t, err)
	assert.Equal(t, "9090,80", ports.String())
	assert.True(t, ports.Contains(80))
	assert.False(t, ports.Contains(443))
}
