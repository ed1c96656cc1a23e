package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIface(t *testing.T) {
	for _, ok := range []string{"", "eth0", "ens192", "br-lan", "wg0.100", "a_b"} {
		assert.NoError(t, ValidateIface(ok), ok)
	}
	for _, bad := range []string{"eth0 extra", "iface/name", "verylonginterfacename", "eth0;rm"} {
		assert.Error(t, ValidateIface(bad), bad)
	}
}

func TestValidateChain(t *testing.T) {
	for _, ok := range []string{"HOSTWALL", "EDGE", "my-chain_2.0", DefaultChain} {
		assert.NoError(t, ValidateChain(ok), ok)
	}
	// The name ends up in iptables arguments and a rendered shell script;
	// whitespace or metacharacters would break both.
	for _, bad := range []string{"", "BAD CHAIN", "CHAIN;reboot", "CHAIN$X", "0123456789012345678901234567890"} {
		assert.Error(t, ValidateChain(bad), bad)
	}
}

func TestOptionsChainName(t *testing.T) {
	assert.Equal(t, DefaultChain, Options{}.chainName())
	assert.Equal(t, "EDGE", Options{Chain: "EDGE"}.chainName())
}
