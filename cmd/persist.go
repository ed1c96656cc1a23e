package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hostwall/hostwall/internal/config"
	"github.com/hostwall/hostwall/internal/persist"
	"github.com/hostwall/hostwall/internal/rules"
)

var persistCmd = &cobra.Command{
	Use:   "persist",
	Short: "Write the boot-time reapply script and systemd unit",
	Long: `Renders a standalone script that rebuilds the chain and a systemd
unit that runs it after the network and docker are up, then writes both
plus the configuration snapshot. Enable with:

    systemctl daemon-reload && systemctl enable hostwall.service`,
	RunE: runPersist,
}

func init() {
	rootCmd.AddCommand(persistCmd)
}

func runPersist(cmd *cobra.Command, args []string) error {
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

	artifacts, err := persist.Render(list, persist.Options{
		Chain:      cfg.Chain,
		Iface:      cfg.Iface,
		ScriptPath: cfg.ScriptPath,
	})
	if err != nil {
		return err
	}
	if err := persist.Write(artifacts, cfg.ScriptPath, cfg.UnitPath); err != nil {
		return err
	}
	log.Infof("wrote %s and %s", cfg.ScriptPath, cfg.UnitPath)

	snap := config.Snapshot{Ports: ports.String(), TrustedSSHSource: trusted.String()}
	if err := snap.Save(cfg.SnapshotPath); err != nil {
		return err
	}
	log.Infof("configuration snapshotted to %s", cfg.SnapshotPath)
	return nil
}
