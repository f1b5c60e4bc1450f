// Command ragctl manages the vector collection and runs ingestion and
// queries from the terminal against the same stores as the server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docrag/internal/bootstrap"
	"docrag/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operate the document question answering pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newCollectionCmd(),
		newIngestCmd(),
		newAskCmd(),
		newHistoryCmd(),
	)
	return root
}

// withApp wires the full application with in-process ingestion and closes it
// when fn returns.
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	cfg, err := bootstrap.Load()
	if err != nil {
		return err
	}
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{LocalOnly: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("close application failed", "error", err)
		}
	}()
	return fn(app)
}

func loadConfig() (*config.Config, error) {
	return bootstrap.Load()
}
