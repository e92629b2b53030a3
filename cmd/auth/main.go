package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TimurCravtov/CraftHub/internal/auth/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	load := func() (app.Config, error) {
		cfg, err := app.LoadConfig(envFile)
		if err != nil {
			return app.Config{}, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run()
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), cfg, app.NewLogger(cfg))
		},
	}

	genkey := &cobra.Command{
		Use:   "genkey",
		Short: "Print fresh values for JWT_SECRET and TFA_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, key, err := app.GenerateSecrets()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "JWT_SECRET=%s\nTFA_ENCRYPTION_KEY=%s\n", secret, key)
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "auth",
		Short:         "CraftHub authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare "auth" behaves like "auth serve".
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment")
	root.AddCommand(serve, migrate, genkey)

	return root
}
