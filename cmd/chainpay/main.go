package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/suspectuso/chainpay/internal/config"
)

var Version = "dev"

// app carries what every command needs
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newRootCmd(&app{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chainpay",
		Short:        "Reconcile on-chain payments with issued payment intents",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}

	rootCmd.AddCommand(runCmd(a))
	rootCmd.AddCommand(issueCmd(a))
	rootCmd.AddCommand(checkpointCmd(a))
	rootCmd.AddCommand(statusCmd(a))

	return rootCmd
}

func (a *app) init() {
	// Load .env file
	envErr := godotenv.Load()

	a.cfg = config.Load()
	a.log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: a.cfg.LogLevel,
	}))
	slog.SetDefault(a.log)

	if envErr != nil {
		a.log.Debug("no .env file found")
	}
}
