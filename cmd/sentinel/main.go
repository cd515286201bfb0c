// Command sentinel runs the threat-monitoring service: it ingests Telegram
// messages, classifies them with the hybrid heuristic+ML engine, persists
// verdicts, and exposes the authenticated Control API the admin UI drives.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/basket/sentinel/internal/analysis"
	"github.com/basket/sentinel/internal/gateway"
	"github.com/basket/sentinel/internal/ingest"
	"github.com/basket/sentinel/internal/settings"
	"github.com/basket/sentinel/internal/store"
	"github.com/basket/sentinel/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:
  %s [flags]

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func main() {
	loadDotEnv(".env")

	flag.Usage = printUsage
	versionFlag := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	homeDir := settings.HomeDir()
	logLevel := os.Getenv("SENTINEL_LOG_LEVEL")
	logger, closer, err := telemetry.NewLogger(homeDir, logLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "logger_ready", "home_dir", homeDir)

	settingsStore, err := settings.New(homeDir, logger)
	if err != nil {
		fatalStartup(logger, "E_SETTINGS_INIT", err)
	}
	if _, err := settingsStore.Load(); err != nil {
		fatalStartup(logger, "E_SETTINGS_LOAD", err)
	}
	logger.Info("startup phase", "phase", "settings_loaded")

	messageStore, err := store.Open(store.DefaultDBPath(homeDir))
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer messageStore.Close()
	logger.Info("startup phase", "phase", "message_store_ready")

	modelCacheDir := os.Getenv("SENTINEL_MODEL_CACHE_DIR")
	if modelCacheDir == "" {
		modelCacheDir = filepath.Join(homeDir, "models")
	}
	logger.Info("startup phase", "phase", "engine_ready", "model_cache_dir", modelCacheDir)

	engine := analysis.NewEngine(analysis.NewCache(analysis.NoopInstantiator{}), logger)
	botFactory := ingest.NewBotClientFactory(logger)
	userFactory := ingest.NewUserClientFactory(logger)

	runtime := ingest.NewRuntime(settingsStore, messageStore, engine, logger, botFactory, userFactory)

	srv := gateway.NewServer(gateway.Config{
		SettingsStore: settingsStore,
		MessageStore:  messageStore,
		Engine:        engine,
		Runtime:       runtime,
		UserFactory:   userFactory,
		BotFactory:    botFactory,
		SecureCookies: strings.EqualFold(os.Getenv("SENTINEL_ENV"), "production"),
		Logger:        logger,
	})
	defer srv.Close()

	bindAddr := bindAddrFromEnv()
	httpServer := &http.Server{
		Addr:    bindAddr,
		Handler: srv.Handler(),
	}

	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "listener_bound", "addr", bindAddr)

	go func() {
		logger.Info("control api listening", "addr", bindAddr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg, loadErr := settingsStore.Load(); loadErr == nil && cfg.BotToken != "" {
		if startErr := runtime.Start(ctx, nil); startErr != nil {
			logger.Warn("auto-start failed; waiting for the Control API to start it", "error", startErr.Error())
		} else {
			logger.Info("ingestion runtime auto-started")
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("control api server error", "error", err.Error())
	}

	runtime.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
	logger.Info("shutdown complete")
}

func bindAddrFromEnv() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	return net.JoinHostPort("0.0.0.0", port)
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), reasonCode, message)
	}
	os.Exit(1)
}
