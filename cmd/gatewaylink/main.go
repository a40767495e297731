// Command gatewaylink connects to a chat service's real-time gateway,
// logs the server's Hello packet and the connection's closure, and keeps
// the connection alive with periodic heartbeats until interrupted. It
// registers no handlers for dispatch events, so those are not logged.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/corvidlabs/gatewaylink/internal/config"
	"github.com/corvidlabs/gatewaylink/internal/logger"
	"github.com/corvidlabs/gatewaylink/pkg/gateway"
	"github.com/corvidlabs/gatewaylink/pkg/websocket"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	configPath := config.File()

	cmd := &cli.Command{
		Name:    "gatewaylink",
		Usage:   "connects to a chat service's real-time gateway and keeps the connection alive",
		Version: bi.Main.Version,
		Flags:   config.Flags(configPath),
		Action:  run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	// Config-time diagnostics (flag validation, session ID generation) use
	// zerolog, the same as the teacher's CLI layer; the gateway connection
	// itself logs through log/slog once it's established below.
	zl := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	l := initLog(cmd.Bool("dev") || cmd.Bool("pretty-log"))
	ctx = logger.InContext(ctx, l)

	sessionID := config.SessionID(zl, cmd)
	host := config.TrimHostScheme(cmd.String("host"))
	l = l.With(slog.String("session_id", sessionID), slog.String("host", host))

	var discoverOpts []gateway.DiscoverOpt
	if clientID := cmd.String("app-client-id"); clientID != "" {
		key, err := os.ReadFile(cmd.String("app-private-key"))
		if err != nil {
			return fmt.Errorf("failed to read app private key: %w", err)
		}
		discoverOpts = append(discoverOpts, gateway.WithAppCredentials(clientID, string(key)))
	}

	client, err := gateway.Connect(ctx, host, gateway.ConnectOptions{
		Logger:      l,
		DiscoverOpt: discoverOpts,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}

	client.OnClose(func(status websocket.StatusCode, reason string) {
		l.Info("gateway connection closed", slog.String("status", status.String()), slog.String("reason", reason))
	})

	client.Dispatcher.HandleOpcode(gateway.OpcodeHello, func(gateway.Packet) {
		l.Info("handshake complete, heartbeat loop started")
	})

	l.Info("connected to gateway")

	<-ctx.Done()
	client.Close()
	return nil
}

// initLog initializes the gatewaylink CLI's default logger, based on whether
// it's running in development mode or not.
func initLog(devMode bool) *slog.Logger {
	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}
