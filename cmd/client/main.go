package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/andy6609/tickchat/internal/client"
)

var (
	addr       string
	logFile    string
	maxContent uint64
)

var rootCmd = &cobra.Command{
	Use:          "client",
	Short:        "Terminal client for the chat server",
	SilenceUsage: true,
	RunE:         runClient,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8080", "chat server address")
	f.StringVar(&logFile, "log-file", "", "write debug logs to this file")
	f.Uint64Var(&maxContent, "max-content-length", client.DefaultMaxContentLength, "largest accepted event payload in bytes, 0 for no limit")
}

func runClient(cmd *cobra.Command, _ []string) error {
	var out io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	session, err := client.Dial(dialCtx, addr, maxContent, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("unable to connect to server: %w", err)
	}
	defer session.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}

	err = client.NewUI(screen, session, logger).Run(ctx)
	screen.Fini()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
