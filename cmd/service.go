package cmd

import (
	"fmt"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage hostwall as a system service",
	Long: `Registers hostwall with the service manager as an alternative to the
rendered script + unit pair from "persist". The installed service runs
"hostwall service run", which reapplies the snapshotted configuration.`,
}

func init() {
	serviceCmd.AddCommand(svcRunCmd, svcInstallCmd, svcUninstallCmd, svcStartCmd, svcStopCmd, svcStatusCmd)
	rootCmd.AddCommand(serviceCmd)
}

// program is the kardianos/service payload: reapply once at startup, then
// idle until the service manager stops us.
type program struct {
	done chan struct{}
}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) run() {
	if err := reapplyFromSnapshot(); err != nil {
		log.Errorf("reapply failed: %v", err)
	}
	<-p.done
}

func (p *program) Stop(s service.Service) error {
	close(p.done)
	return nil
}

func newSVCConfig() *service.Config {
	args := []string{"service", "run", "--log-level", logLevel}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return &service.Config{
		Name:        "hostwall",
		DisplayName: "hostwall",
		Description: "Reapplies the hostwall firewall chain at boot",
		Arguments:   args,
		// Respected only by systemd systems.
		Dependencies: []string{"After=network-online.target docker.service"},
	}
}

func newSVC() (service.Service, error) {
	return service.New(&program{done: make(chan struct{})}, newSVCConfig())
}

var svcRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run under the service manager (not for interactive use)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		return s.Run()
	},
}

var svcInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the hostwall service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		if err := s.Install(); err != nil {
			return fmt.Errorf("install service: %w", err)
		}
		log.Info("hostwall service installed")
		return nil
	},
}

var svcUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the hostwall service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}
		log.Info("hostwall service uninstalled")
		return nil
	},
}

var svcStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the hostwall service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		return s.Start()
	},
}

var svcStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the hostwall service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		return s.Stop()
	},
}

var svcStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the hostwall service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSVC()
		if err != nil {
			return err
		}
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("get service status: %w", err)
		}
		switch status {
		case service.StatusRunning:
			cmd.Println("hostwall service is running")
		case service.StatusStopped:
			cmd.Println("hostwall service is stopped")
		default:
			cmd.Println("hostwall service status unknown")
		}
		return nil
	},
}
