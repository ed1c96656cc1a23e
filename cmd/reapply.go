package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hostwall/hostwall/internal/config"
	"github.com/hostwall/hostwall/internal/rules"
)

var reapplyCmd = &cobra.Command{
	Use:   "reapply",
	Short: "Reapply the last snapshotted configuration",
	Long: `Boot-time path: reads the configuration snapshot written by the last
apply and rebuilds the chain from it. Takes no rule inputs of its own.
Any malformed snapshot value aborts without touching the live chain.`,
	RunE: runReapply,
}

func init() {
	rootCmd.AddCommand(reapplyCmd)
}

func runReapply(cmd *cobra.Command, args []string) error {
	return reapplyFromSnapshot()
}

// reapplyFromSnapshot is shared between the reapply command and the
// service payload. It loads only the backend, chain and path settings
// from the interactive configuration; the rule inputs come exclusively
// from the snapshot.
func reapplyFromSnapshot() error {
	cfg, err := config.LoadBase(v)
	if err != nil {
		return err
	}

	snap, err := config.LoadSnapshot(cfg.SnapshotPath)
	if err != nil {
		return err
	}

	ports, err := rules.ParsePortSet(snap.Ports)
	if err != nil {
		return err
	}
	trusted, err := rules.ParseTrustedSource(snap.TrustedSSHSource)
	if err != nil {
		return err
	}

	list, err := rules.Generate(ports, trusted)
	if err != nil {
		return err
	}
	return applyAndVerify(cfg, list)
}
