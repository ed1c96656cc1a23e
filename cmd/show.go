package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hostwall/hostwall/internal/config"
	"github.com/hostwall/hostwall/internal/rules"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the generated chain without applying it",
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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
	cmd.Printf("chain %s (%d rules):\n%s\n", cfg.Chain, len(list), list)
	return nil
}
