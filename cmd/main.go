package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"apartner/internal/config"
	"apartner/internal/jobs"
	"apartner/internal/models"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "apartner"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Rental contract signing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), awaitSignatureCmd(), relayOutboxCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.App.LogLevel, true)

			app, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			relay := jobs.NewOutboxRelay(app.repo, app.publisher, cfg.Jobs, logger)
			go relay.Start()
			defer relay.Stop()

			srv := &http.Server{
				Addr:    ":" + cfg.Server.Port,
				Handler: app.router(cfg),
			}

			go func() {
				logger.Info("server starting", "port", cfg.Server.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", "error", err)
					os.Exit(1)
				}
			}()

			// Wait for interrupt signal to gracefully shutdown the server
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exited")
			return nil
		},
	}
}

func awaitSignatureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "await-signature <contract-id>",
		Short: "Poll the signature provider until a sent contract is signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid contract id %q", args[0])
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.App.LogLevel, false)

			app, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			contract, err := app.repo.GetContract(ctx, uint(id))
			if err != nil {
				return fmt.Errorf("failed to load contract %d: %w", id, err)
			}
			if contract.Status == models.ContractStatusSigned {
				fmt.Printf("contract %d is already signed\n", contract.ID)
				return nil
			}
			if contract.SignatureRequestID == nil {
				return fmt.Errorf("contract %d has not been sent for signing", contract.ID)
			}

			signed, err := app.coordinator.Await(ctx, *contract.SignatureRequestID)
			if err != nil {
				return err
			}
			fmt.Printf("contract %d signed at %s\n", signed.ID, signed.SignedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func relayOutboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay-outbox",
		Short: "Publish pending outbox events once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.App.LogLevel, false)

			app, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			relay := jobs.NewOutboxRelay(app.repo, app.publisher, cfg.Jobs, logger)
			n, err := relay.RelayOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("published %d events\n", n)
			return nil
		},
	}
}
