// Command lockd runs the type-C relay fleet controller: it loads the
// device config and environment, opens sessions to every reachable
// device, retries unreachable ones in the background, and serves the
// authenticated HTTP API described in the project's interface spec.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lockrelay/lockd/internal/auth"
	"github.com/lockrelay/lockd/internal/config"
	"github.com/lockrelay/lockd/internal/relay"
	"github.com/lockrelay/lockd/pkg/log"
)

func main() {
	configPath := flag.String("config", "config.json", "fleet configuration file")
	envPath := flag.String("env", ".env", "environment file (optional)")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	protocolLog := flag.String("protocol-log", "", "optional file path for protocol event logging (JSON lines)")
	flag.Parse()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slogger)

	env, err := config.LoadEnv(*envPath)
	if err != nil {
		slogger.Error("startup: environment", "error", err)
		os.Exit(1)
	}
	setLogLevel(env.LogLevel)

	fleet, err := config.LoadFleet(*configPath)
	if err != nil {
		slogger.Error("startup: fleet config", "error", err)
		os.Exit(1)
	}

	eventLogger := buildEventLogger(slogger, *protocolLog)

	initializer, err := relay.NewInitializer(fleet, nil, eventLogger)
	if err != nil {
		slogger.Error("startup: fleet config invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if initializer.InitializeOnce(ctx) {
		slogger.Info("startup: fleet fully online")
	} else {
		slogger.Warn("startup: fleet partially online, retrying unreachable devices in background")
		go func() {
			if err := initializer.Run(ctx, nil); err != nil {
				slogger.Warn("background fleet retry stopped", "error", err)
			} else {
				slogger.Info("background fleet retry: all devices online")
			}
		}()
	}

	authenticator := auth.NewAuthenticator(env.SecretKey, env.Username, env.PasswordHash)
	server := NewServer(fleet, initializer.Registry(), authenticator, eventLogger)

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.Routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slogger.Info("listening", "addr", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server failed", "error", err)
		}
	}()

	<-sigCh
	slogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	cancel()
	initializer.Registry().Disconnect()
}

func setLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(l)
}

func buildEventLogger(slogger *slog.Logger, protocolLogPath string) log.Logger {
	adapter := log.NewSlogAdapter(slogger)
	if protocolLogPath == "" {
		return adapter
	}
	fileLogger, err := log.NewFileLogger(protocolLogPath)
	if err != nil {
		slogger.Warn("protocol-log: falling back to slog only", "error", err)
		return adapter
	}
	return log.NewMultiLogger(adapter, fileLogger)
}
