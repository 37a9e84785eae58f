package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayuer/chatgw/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration and enabled channels",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config:         %s\n", path)
	fmt.Fprintf(out, "Listen:         %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "Contact center: %s", cfg.ContactCenter.Backend)
	if cfg.ContactCenter.InstanceID != "" {
		fmt.Fprintf(out, " (instance %s)", cfg.ContactCenter.InstanceID)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Directory:      %s (ttl %s)\n", cfg.Directory.Backend, cfg.Directory.TTL)
	fmt.Fprintf(out, "Secrets:        %s\n", cfg.Secrets.Backend)
	fmt.Fprintf(out, "Events:         %s\n", cfg.Events.Source)
	if cfg.PII.Enabled() {
		fmt.Fprintf(out, "PII redaction:  %v\n", cfg.PII.RedactionTypes)
	}

	fmt.Fprintln(out, "\nChannels:")
	enabled := cfg.EnabledChannels()
	if len(enabled) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, name := range enabled {
		fmt.Fprintf(out, "  %s: ✓\n", name)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "\nConfiguration problems:\n  %v\n", err)
	}
	return nil
}
