package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hostwall/hostwall/internal/config"
	"github.com/hostwall/hostwall/internal/firewall"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the live rules of the managed chain",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	backend, err := firewall.New(cfg.Backend, firewall.Options{
		Chain: cfg.Chain,
		Iface: cfg.Iface,
	})
	if err != nil {
		return err
	}
	live, err := backend.QueryChain()
	if err != nil {
		return err
	}
	cmd.Printf("chain %s (%d rules):\n", cfg.Chain, len(live))
	for i, line := range live {
		cmd.Printf("%d: %s\n", i+1, line)
	}
	return nil
}
