package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hostwall/hostwall/internal/config"
)

var (
	cfgFile  string
	logLevel string

	v *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "hostwall",
	Short: "Container host inbound firewall",
	Long: `hostwall builds a default-drop allowlist chain for a container host,
applies it to the live packet filter and persists it across reboots.
Container-published ports are covered by diverting DOCKER-USER traffic
through the managed chain.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default /etc/hostwall/hostwall.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("ports", config.DefaultPorts, "comma-separated TCP ports to allow")
	pf.String("trusted-ssh-source", "", "CIDR allowed to reach tcp/22 (SSH stays closed without it)")
	pf.String("backend", config.DefaultBackend, "packet filter backend: iptables or nftables")
	pf.String("chain", config.DefaultChain, "managed chain name")
	pf.String("iface", "", "restrict filtering to this ingress interface")
}

// initConfig layers defaults, config file, environment and flags into one
// viper instance shared by all commands.
func initConfig(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("log level %q: %w", logLevel, err)
	}
	log.SetLevel(level)

	v = viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix("HOSTWALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := cmd.Root().PersistentFlags()
	for flagName, key := range map[string]string{
		"ports":              "ports",
		"trusted-ssh-source": "trusted_ssh_source",
		"backend":            "backend",
		"chain":              "chain",
		"iface":              "iface",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flagName)); err != nil {
			return err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("hostwall")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/hostwall")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
