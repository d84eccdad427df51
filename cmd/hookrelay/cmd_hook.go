package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/user/hookrelay/internal/gateway"
	"github.com/user/hookrelay/internal/hook"
	"github.com/user/hookrelay/internal/state"
	"github.com/user/hookrelay/internal/turn"
)

var hookIntegration string

func init() {
	hookCmd.Flags().StringVar(&hookIntegration, "integration", "", "hook integration (cursor, claude); defaults to config")
	rootCmd.AddCommand(hookCmd)
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Process one hook event from stdin",
	Long: `Reads a single hook event from stdin, records it, and emits the
acknowledgment the host expects on stdout. Intended to be invoked by the
editor's hook mechanism, never interactively. Always exits zero.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		// stdout and stderr belong to the host protocol here; logs go
		// to a file instead.
		setupFileLogging(cfg)

		integration := hookIntegration
		if integration == "" {
			integration = cfg.Gateway.Integration
		}

		adapter, err := hook.NewRegistry().Lookup(integration)
		if err != nil {
			// Unknown integration still acknowledges; the session must
			// not block.
			os.Stdout.WriteString("{}")
			return nil
		}

		log := state.NewAuditLog(cfg.DataDir)
		client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, integration)
		tracker := turn.NewTracker(log, gateway.WithRetry(client))

		pipeline := hook.NewPipeline(adapter, tracker)
		return pipeline.Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}
