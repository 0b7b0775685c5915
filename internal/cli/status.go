package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and the writes waiting for replay",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	report := app.Health().CheckHealth(ctx)
	fmt.Printf("Status: %s (%s)\n", report.SystemStatus, report.Connectivity)
	for _, p := range report.Problems {
		fmt.Printf("  - %s\n", p)
	}

	pending, err := app.Dispatcher().Pending(ctx)
	if err != nil {
		slog.Error("Failed to read pending actions", "error", err)
		os.Exit(1)
	}
	if len(pending) == 0 {
		fmt.Println("No pending actions")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tMETHOD\tENDPOINT\tQUEUED")
	for _, a := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Method, a.Endpoint, a.EnqueuedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
