package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy6609/tickchat/internal/chat"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Tick driven multi-user chat server",
	Long: `Accepts chat clients over TCP (and optionally websocket), asks each one for a
username and relays messages between registered users. Settings come from
an optional YAML file, CHAT_* environment variables and the flags below.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	def := chat.DefaultConfig()
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "path to a YAML config file")
	f.String("addr", def.Addr, "chat listen address")
	f.String("metrics-addr", def.MetricsAddr, "admin listen address (metrics, health, websocket)")
	f.String("ws-path", def.WSPath, "websocket path on the admin listener, empty disables it")
	f.Int("max-content-length", def.MaxContentLength, "largest accepted event payload in bytes")
	f.Int("initial-capacity", def.InitialCapacity, "initial connection table size")
	f.Float64("growth-factor", def.GrowthFactor, "table growth multiplier")
	f.Int("max-slots", def.MaxSlots, "table size cap, 0 for unbounded")
	f.Duration("tick-interval", def.TickInterval, "server loop tick period")
	f.Duration("write-timeout", def.WriteTimeout, "per frame write deadline")
	f.Int("outbox-size", def.OutboxSize, "queued outgoing frames per connection")
	f.Int("max-username-length", def.MaxUsernameLength, "longest accepted username in characters")
	f.Float64("message-rate", def.MessageRate, "messages per second per user, 0 disables limiting")
	f.Int("message-burst", def.MessageBurst, "message burst allowed above the rate")
	f.String("log-level", def.LogLevel, "debug, info, warn or error")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := chat.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		return err
	}

	admin := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           srv.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("admin listener started", "addr", cfg.MetricsAddr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin listener failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := admin.Shutdown(ctx); err != nil {
		logger.Warn("admin shutdown", "error", err)
	}

	srv.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
