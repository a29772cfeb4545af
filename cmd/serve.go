package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"devcrew/config"
	"devcrew/internal/logging"
	"devcrew/store"
	"devcrew/wsbridge"
)

var (
	serveConfigPath string
	serveAttempts   int
	serveInterval   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history to a viewer over the event bridge",
	Long: `Start a long-running process that connects to a viewer via WebSocket.
The instance registers with the viewer, which can then inspect the config
and query recorded chat runs and command executions.

Requires a "bridge" block in the config with a url.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(serveConfigPath)
		if err != nil {
			return err
		}
		if !cfg.Bridge.Enabled() {
			return errors.New("no bridge block in config; add a bridge block with a url")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stores, err := store.NewBundle(ctx, cfg.Storage.Options())
		if err != nil {
			return fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
		}
		defer stores.Close()

		for {
			client, err := connectWithRetry(ctx, cfg, stores)
			if err != nil {
				return err
			}
			fmt.Printf("Connected to viewer at %s (instance: %s, id: %s)\n",
				cfg.Bridge.URL, cfg.Bridge.InstanceName, client.InstanceID())

			select {
			case <-ctx.Done():
				fmt.Println("\nShutting down...")
				client.Close()
				return nil
			case <-client.Done():
				client.Close()
				fmt.Println("Connection lost, reconnecting...")
			}
		}
	},
}

func connectWithRetry(ctx context.Context, cfg *config.Config, stores *store.Bundle) (*wsbridge.Client, error) {
	logger := logging.New("wsbridge")
	for attempt := 1; ; attempt++ {
		client := wsbridge.NewClient(wsbridge.Options{
			URL:          cfg.Bridge.URL,
			InstanceName: cfg.Bridge.InstanceName,
			Version:      Version,
			Config:       cfg,
			Stores:       stores,
			Logger:       logger,
		})
		err := client.Connect(ctx)
		if err == nil {
			return client, nil
		}
		if attempt >= serveAttempts {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}
		logger.Warn("connection attempt failed", "attempt", attempt, "max", serveAttempts, "retry_in", serveInterval, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(serveInterval):
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", ".", "Path to config file or directory")
	serveCmd.Flags().IntVar(&serveAttempts, "attempts", 10, "Connection attempts before giving up")
	serveCmd.Flags().DurationVar(&serveInterval, "retry-interval", 5*time.Second, "Delay between connection attempts")
}
