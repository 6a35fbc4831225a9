// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/routinetimer/internal/api/connect"
	"github.com/osa030/routinetimer/internal/app/notification"
	"github.com/osa030/routinetimer/internal/app/playback"
	"github.com/osa030/routinetimer/internal/app/session"
	"github.com/osa030/routinetimer/internal/infra/config"
	"github.com/osa030/routinetimer/internal/infra/logger"
	"github.com/osa030/routinetimer/internal/infra/metrics"
	"github.com/osa030/routinetimer/internal/infra/preferences"
	"github.com/osa030/routinetimer/internal/infra/store"
)

var (
	app        = kingpin.New("routinetimer-server", "Routine countdown timer server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-sinks command
	listSinksCmd = app.Command("list-sinks", "List available cue sinks and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listSinksCmd.FullCommand() {
		printSinks()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("server: loading config: path=%s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("server: failed to load config: %v", err)
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("server: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	routines, err := store.Open(cfg.Storage.Path, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := routines.Close(); err != nil {
			zlog.Error().Msgf("server: failed to close store: %v", err)
		}
	}()

	prefs, err := preferences.Open(cfg.Preferences.Path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Preferences.Watch {
		watcher, err := preferences.NewWatcher(prefs, cfg.Preferences.Debounce())
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	targets, err := notification.NewTargetsFromConfig(cfg.Notifier)
	if err != nil {
		return errors.Wrap(err, "invalid notifier config")
	}
	defer notification.CloseTargets(targets)

	mux := http.NewServeMux()

	deps := session.Dependencies{
		Routines:    routines,
		Preferences: prefs,
		Targets:     targets,
	}
	if cfg.Metrics.Enabled {
		registry := metrics.NewRegistry()
		deps.Recorder = metrics.NewRecorder(registry)
		mux.Handle(cfg.Metrics.Path, metrics.HTTPHandler(registry))
		zlog.Info().Msgf("server: metrics enabled: path=%s", cfg.Metrics.Path)
	}

	sessionMgr := session.NewManager(session.Config{
		Timer: playback.Config{
			TickResolution:  cfg.Timer.TickResolution(),
			DelayResolution: cfg.Timer.DelayResolution(),
			SendTimeout:     cfg.Timer.SendTimeout(),
		},
		EventBuffer: cfg.Timer.EventBuffer,
		SinkTimeout: cfg.Notifier.SinkTimeout(),
	}, deps)

	timerService := apiconnect.NewTimerService(sessionMgr, routines, prefs, cfg.Timer.EventBuffer)
	timerPath, timerHandler := apiconnect.NewTimerServiceHandler(
		timerService,
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)),
	)
	mux.Handle(timerPath, timerHandler)
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("server: no control token configured, API is unauthenticated")
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		if err := sessionMgr.Run(ctx); err != nil {
			zlog.Error().Msgf("server: session manager stopped: %v", err)
		}
	}()

	go func() {
		zlog.Info().Msgf("server: starting: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("server: received shutdown signal")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("server: failed to shutdown: %v", err)
	}

	zlog.Info().Msg("server: stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// printSinks prints available cue sinks.
func printSinks() {
	fmt.Println("Available Sinks:")
	for _, t := range notification.Registered() {
		fmt.Printf("  %-10s - %s\n", t.Name, t.Description)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("server: executing %s hooks: count=%d", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("server: executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("server: failed to execute hook: %s", hook)
		}
	}
}
