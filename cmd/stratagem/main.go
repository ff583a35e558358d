package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbiome/stratagem/internal/config"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "stratagem",
		Short: "Stratagem - query strategy assistant backend",
		Long: `Stratagem is the backend for the query strategy assistant.
It reconciles planning-agent chat events into conversation transcripts
and strategy graphs, serves them over REST and websocket, and persists
them to PostgreSQL.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		replayCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host:           %s\n", cfg.Server.Host)
			fmt.Printf("  Port:           %d\n", cfg.Server.Port)
			fmt.Printf("  Origins:        %v\n", cfg.Server.AllowedOrigins)
			fmt.Printf("  Agent Secret:   %s\n", maskSecret(cfg.Server.AgentSecret))
			fmt.Printf("  Require Auth:   %v\n", cfg.Server.RequireAuth)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.URL))
			fmt.Println()

			fmt.Println("WDK:")
			fmt.Printf("  Base URL: %s\n", cfg.WDK.BaseURL)
			fmt.Printf("  Site ID:  %s\n", cfg.WDK.SiteID)
			fmt.Printf("  Status:   %s\n", boolStatus(cfg.WDK.BaseURL != ""))
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  STRATAGEM_SERVER_HOST, STRATAGEM_SERVER_PORT, STRATAGEM_ALLOWED_ORIGINS")
			fmt.Println("  STRATAGEM_AGENT_SECRET, STRATAGEM_REQUIRE_AUTH")
			fmt.Println("  STRATAGEM_POSTGRES_URL")
			fmt.Println("  STRATAGEM_WDK_URL, STRATAGEM_SITE_ID")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratagem %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// boolStatus returns a status string for a boolean
func boolStatus(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
