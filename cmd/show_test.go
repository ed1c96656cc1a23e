package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwall/hostwall/internal/rules"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestShowCommand(t *testing.T) {
	out, err := execute(t,
		"show",
		"--ports", "80,443,9090",
		"--trusted-ssh-source", "203.0.113.10/32",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "chain HOSTWALL (6 rules):")
	assert.Contains(t, out, "--ctstate RELATED,ESTABLISHED")
	assert.Contains(t, out, "-s 203.0.113.10/32 --dport 22 -j ACCEPT")
	assert.Contains(t, out, "--dport 9090 -j ACCEPT")
	assert.Contains(t, out, "-j DROP")
}

func TestShowCommandInvalidPorts(t *testing.T) {
	_, err := execute(t,
		"show",
		"--ports", "80,abc",
		"--trusted-ssh-source", "",
	)
	require.ErrorIs(t, err, rules.ErrInvalidPort)
}

func TestShowCommandEmptyPorts(t *testing.T) {
	_, err := execute(t,
		"show",
		"--ports", "",
		"--trusted-ssh-source", "",
	)
	require.ErrorIs(t, err, rules.ErrEmptyPortSet)
}
