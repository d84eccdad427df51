package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/hookrelay/internal/state"
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logListCmd, logClearCmd)
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the local event log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending event records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		log := state.NewAuditLog(cfg.DataDir)
		recs, err := log.LoadAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("load log: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("log is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECEIVED\tKIND\tCONVERSATION\tGENERATION")
		for _, rec := range recs {
			ev := rec.Event
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.ReceivedAt.Format(time.RFC3339), ev.Kind, ev.ConversationID, ev.GenerationID)
		}
		return w.Flush()
	},
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all pending event records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		log := state.NewAuditLog(cfg.DataDir)
		if err := log.ReplaceAll(cmd.Context(), nil); err != nil {
			return fmt.Errorf("clear log: %w", err)
		}
		fmt.Println("log cleared")
		return nil
	},
}
