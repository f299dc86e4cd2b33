package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/heraldbot/herald/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program satisfies service.Interface. The service manager launches
// "herald start" as the managed process, so Start and Stop only run
// during control actions, where there is nothing to do.
type program struct{}

func (program) Start(service.Service) error { return nil }
func (program) Stop(service.Service) error  { return nil }

// serviceConfig describes the managed herald instance. The config path
// must already be absolute: service managers start processes from /.
func serviceConfig(cfgPath string) *service.Config {
	cfg := &service.Config{
		Name:        "herald",
		DisplayName: "Herald",
		Description: "Self-hosted Telegram assistant daemon",
	}
	if cfgPath != "" {
		cfg.Arguments = []string{"start", "--config", cfgPath}
	}
	return cfg
}

var actionDone = map[string]string{
	"install":   "installed",
	"uninstall": "uninstalled",
	"start":     "started",
	"stop":      "stopped",
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage herald as a system service",
	}
	cmd.AddCommand(
		serviceInstallCmd(),
		serviceActionCmd("uninstall", "Remove the herald service"),
		serviceActionCmd("start", "Start the herald service"),
		serviceActionCmd("stop", "Stop the herald service"),
		serviceStatusCmd(),
	)
	return cmd
}

func serviceInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install herald as a system service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}
			abs, err := filepath.Abs(cfgPath)
			if err != nil {
				return err
			}

			svc, err := service.New(program{}, serviceConfig(abs))
			if err != nil {
				return err
			}
			if err := service.Control(svc, "install"); err != nil {
				return err
			}
			fmt.Printf("herald service installed (config: %s)\n", abs)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func serviceActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := service.New(program{}, serviceConfig(""))
			if err != nil {
				return err
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Printf("herald service %s\n", actionDone[action])
			return nil
		},
	}
}

func serviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the herald service status",
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := service.New(program{}, serviceConfig(""))
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Println("herald service is not installed")
				return nil
			}
			if err != nil {
				return err
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("herald service is running")
			case service.StatusStopped:
				fmt.Println("herald service is stopped")
			default:
				fmt.Println("herald service status unknown")
			}
			return nil
		},
	}
}
