package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hostwall/hostwall/internal/config"
	"github.com/hostwall/hostwall/internal/firewall"
	"github.com/hostwall/hostwall/internal/rules"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Generate the chain and apply it to the live packet filter",
	Long: `Generates the allowlist chain from the effective configuration,
replaces the managed chain wholesale and verifies the result. On success
the configuration is snapshotted so the boot-time reapply path reproduces
exactly this state.`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

// newBackend is swapped out in tests.
var newBackend = firewall.New

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	ports, trusted, err := cfg.Resolve()
	if err != nil {
		return err
	}

	list, err := rules.Generate(ports, trusted)
	if err != nil {
		return err
	}

	if err := applyAndVerify(cfg, list); err != nil {
		return err
	}

	snap := config.Snapshot{Ports: ports.String(), TrustedSSHSource: trusted.String()}
	if err := snap.Save(cfg.SnapshotPath); err != nil {
		return err
	}
	log.Infof("configuration snapshotted to %s", cfg.SnapshotPath)
	return nil
}

// applyAndVerify replaces the managed chain and checks the live rule count
// against the generated list. A mismatch means the chain must not be
// trusted and is reported as an error.
func applyAndVerify(cfg *config.Config, list rules.RuleList) error {
	backend, err := newBackend(cfg.Backend, firewall.Options{
		Chain: cfg.Chain,
		Iface: cfg.Iface,
	})
	if err != nil {
		return err
	}
	if err := backend.Apply(list); err != nil {
		return err
	}

	live, err := backend.QueryChain()
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	if len(live) != len(list) {
		return fmt.Errorf("chain verification failed: %d live rules, expected %d", len(live), len(list))
	}
	log.Infof("chain %s verified: %d rules live", cfg.Chain, len(live))
	return nil
}
