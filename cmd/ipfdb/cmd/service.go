/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/config"
)

const (
	serviceName     = "ipfdb.service"
	systemdUnitPath = "/etc/systemd/system/" + serviceName
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage ipfdb as a systemd service",
	Long: `Manage ipfdb as a systemd service. The unit runs 'ipfdb up' with the
installed configuration and restarts on failure.`,
}

// installServiceCmd represents the service install command
var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install ipfdb as a systemd service",
	Long: `Install ipfdb as a systemd service.

This will:
- Create or update the configuration file
- Write the systemd unit file
- Enable and optionally start the service

Examples:
  ipfdb service install
  ipfdb service install --data-dir /var/lib/ipfdb --user ipfdb`,
	Annotations: map[string]string{annotationCreatesConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}
		user, _ := cmd.Flags().GetString("user")
		binary, _ := cmd.Flags().GetString("binary")
		startNow, _ := cmd.Flags().GetBool("start")

		if os.Geteuid() != 0 {
			return errors.New("service install requires root privileges, run with: sudo ipfdb service install")
		}

		cfg := rt.config
		if !cmd.Flags().Changed("data-dir") && !config.ConfigExists(rt.configPath) {
			cfg.DataDir = "/var/lib/ipfdb"
		}
		if err := config.SaveConfig(cfg, rt.configPath); err != nil {
			return err
		}
		cmd.Printf("Configuration saved to %s\n", rt.configPath)

		if err := writeSystemdUnit(systemdUnitPath, cfg, rt.configPath, user, binary); err != nil {
			return fmt.Errorf("failed to create systemd unit: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		if err := runSystemctlCommand("enable", serviceName); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
		if startNow {
			if err := runSystemctlCommand("start", serviceName); err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
		}

		cmd.Printf("Service: %s\n", serviceName)
		cmd.Printf("Data: %s\n", cfg.DataDir)
		cmd.Printf("Port: %d\n", cfg.Port)
		if !startNow {
			cmd.Printf("\nTo start the service: sudo systemctl start %s\n", serviceName)
		}
		cmd.Printf("To view logs: sudo journalctl -u %s -f\n", serviceName)
		return nil
	},
}

// uninstallServiceCmd represents the service uninstall command
var uninstallServiceCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the ipfdb service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() != 0 {
			return errors.New("service uninstall requires root privileges, run with: sudo ipfdb service uninstall")
		}

		_ = runSystemctlCommand("stop", serviceName) // already stopped is fine
		if err := runSystemctlCommand("disable", serviceName); err != nil {
			cmd.Printf("Warning: could not disable service: %v\n", err)
		}
		if err := os.Remove(systemdUnitPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}

		cmd.Printf("Service uninstalled. Configuration and data files were not removed.\n")
		return nil
	},
}

// systemctlCmd builds a subcommand that forwards a single systemctl verb
func systemctlCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemctlCommand(verb, serviceName)
		},
	}
}

// logsCmd represents the service logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show ipfdb service logs",
	Long: `Show ipfdb service logs using journalctl.

Examples:
  ipfdb service logs
  ipfdb service logs -f`,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		return runCommand("journalctl", journalArgs(follow, lines)...)
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installServiceCmd)
	serviceCmd.AddCommand(uninstallServiceCmd)
	serviceCmd.AddCommand(systemctlCmd("start", "Start the ipfdb service"))
	serviceCmd.AddCommand(systemctlCmd("stop", "Stop the ipfdb service"))
	serviceCmd.AddCommand(systemctlCmd("restart", "Restart the ipfdb service"))
	serviceCmd.AddCommand(systemctlCmd("status", "Show ipfdb service status"))
	serviceCmd.AddCommand(logsCmd)

	installServiceCmd.Flags().String("user", "ipfdb", "User to run the service as")
	installServiceCmd.Flags().String("binary", "/usr/local/bin/ipfdb", "Path of the ipfdb binary")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}

// systemdUnit renders the unit file for the given configuration
func systemdUnit(cfg *config.Config, configPath, user, binary string) string {
	return fmt.Sprintf(`[Unit]
Description=ipfdb instrument profile server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s up --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, cfg.DataDir, filepath.Dir(configPath))
}

// writeSystemdUnit writes the unit file to unitPath
func writeSystemdUnit(unitPath string, cfg *config.Config, configPath, user, binary string) error {
	return os.WriteFile(unitPath, []byte(systemdUnit(cfg, configPath, user, binary)), 0644)
}

func journalArgs(follow bool, lines int) []string {
	args := []string{"-u", serviceName}
	if follow {
		args = append(args, "-f")
	}
	if lines > 0 {
		args = append(args, fmt.Sprintf("-n%d", lines))
	}
	return args
}

// runSystemctlCommand runs a systemctl command
func runSystemctlCommand(args ...string) error {
	return runCommand("systemctl", args...)
}

// runCommand runs a system command with the process's stdout and stderr
func runCommand(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
