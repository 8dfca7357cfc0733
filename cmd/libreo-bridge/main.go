package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/app"
	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/server"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Libreo Bridge version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if *configFile == "" {
		if _, err := os.Stat("libreo-bridge.toml"); err == nil {
			*configFile = "libreo-bridge.toml"
		}
	}

	// Startup sequence: config (defaults -> file -> env -> CLI), then
	// validation, logger, banner.
	config, err := common.LoadFromFile(*configFile)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	// Missing or malformed portal settings are the only fatal condition.
	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger.Info().
		Str("config_file", *configFile).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("portal", config.Portal.PortalURL).
		Str("username", config.Portal.Username).
		Str("password", maskSecret(config.Portal.Password)).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	srv := server.New(application)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Cold start: login, mirror, start polling.
	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := application.Bootstrap(bootstrapCtx); err != nil {
		cancelBootstrap()
		logger.Fatal().Err(err).Msg("Bootstrap failed")
		os.Exit(1)
	}
	cancelBootstrap()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown failed")
	}
}

// maskSecret keeps the first two characters so operators can tell which
// credential was loaded without the log ever carrying the full secret
func maskSecret(secret string) string {
	if len(secret) <= 2 {
		return "***"
	}
	return secret[:2] + "***"
}
