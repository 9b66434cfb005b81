package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/relaydesk/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relaydesk",
	Short: "Relaydesk - email template console",
	Long: `Relaydesk manages per-project email templates, attachments and SMTP
settings, and delivers messages through an external email relay.`,
	SilenceUsage: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("relaydesk version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and environment only when empty)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, configCmd, templatesCmd, versionCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Listen: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Relay: %s\n", cfg.Relay.BaseURL)
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  Attachments: %s\n", cfg.Attachments.Backend)
	fmt.Printf("  Cache: %s\n", cfg.Cache.Backend)
	if cfg.SMTP.SecretKey == "" {
		fmt.Printf("  Warning: smtp.secret_key is empty, SMTP passwords are stored unsealed\n")
	}

	return nil
}
