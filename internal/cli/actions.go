package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/kitchenline/internal/core/domain"
)

var (
	callData    string
	loginToken  string
	loginTenant string
)

var callCmd = &cobra.Command{
	Use:   "call METHOD PATH",
	Short: "Perform one API call through the offline-aware dispatcher",
	Args:  cobra.ExactArgs(2),
	Run:   runCall,
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay pending writes now",
	Run:   runDrain,
}

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Abandon every pending write",
	Run:   runDiscard,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token and tenant",
	Run:   runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear credentials, cached data and pending writes",
	Run:   runLogout,
}

func init() {
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "JSON request body")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "API bearer token")
	loginCmd.Flags().StringVar(&loginTenant, "tenant", "", "tenant id")
	_ = loginCmd.MarkFlagRequired("token")

	rootCmd.AddCommand(callCmd, drainCmd, discardCmd, loginCmd, logoutCmd)
}

func runCall(cmd *cobra.Command, args []string) {
	method, err := domain.ParseMethod(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	var body json.RawMessage
	if callData != "" {
		body = json.RawMessage(callData)
	}

	res, err := app.Dispatcher().Call(ctx, method, args[1], body)
	if err != nil {
		slog.Error("Call failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Call complete", "source", res.Source, "status", res.Status)
	if res.Action != nil {
		slog.Info("Queued for replay", "id", res.Action.ID)
	}
	fmt.Println(string(res.Data))
}

func runDrain(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	res, err := app.Dispatcher().DrainPending(ctx)
	fmt.Printf("Applied: %d, remaining: %d\n", len(res.Applied), len(res.Remaining))
	if err != nil {
		slog.Error("Drain halted", "error", err)
		os.Exit(1)
	}
}

func runDiscard(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Dispatcher().DiscardPending(ctx); err != nil {
		slog.Error("Failed to discard pending actions", "error", err)
		os.Exit(1)
	}
	slog.Info("Pending actions discarded")
}

func runLogin(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Dispatcher().Login(ctx, loginToken, loginTenant); err != nil {
		slog.Error("Login failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Credentials stored", "tenant", loginTenant)
}

func runLogout(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Dispatcher().Logout(ctx); err != nil {
		slog.Error("Logout failed", "error", err)
		os.Exit(1)
	}
}
