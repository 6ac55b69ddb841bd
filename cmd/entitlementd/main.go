package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/api"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/backend"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/config"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/entitlement"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/logging"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/storekit"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/trial"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var userFlag string

var rootCmd = &cobra.Command{
	Use:     "entitlementd",
	Short:   "GoFit entitlement reconciliation engine",
	Long:    `entitlementd fuses the local free-trial clock, store transaction events, and the subscription backend into one cached access decision for GoFit premium features`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("entitlementd %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Flags().StringVar(&userFlag, "user", "", "authenticated user ID to reconcile for")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "entitlementd",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "entitlementd",
	})

	log.Info().Str("version", Version).Msg("Starting entitlement engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal, err := storekit.OpenJournal(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transaction journal")
	}
	defer journal.Close()

	var provider storekit.Provider
	if cfg.MockStore {
		log.Warn().Msg("Using simulated store provider (mock mode)")
		provider = storekit.NewSimulatedProvider()
	} else {
		// The platform store bridge is injected by the host app; standalone
		// runs fall back to the simulated provider.
		provider = storekit.NewSimulatedProvider()
	}

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout)
	trialClock := trial.NewClock(trial.NewFileStore(cfg.DataDir), cfg.TrialDuration)
	auditLog := entitlement.NewAuditLog()
	metrics := entitlement.Metrics()

	svc := entitlement.NewService(entitlement.ServiceOptions{
		TrialClock:    trialClock,
		TrialDuration: cfg.TrialDuration,
		Backend:       backendClient,
		Provider:      provider,
		CacheTTL:      cfg.CacheTTL,
		Audit:         auditLog,
		Metrics:       metrics,
	})
	if userFlag != "" {
		svc.SetUser(userFlag)
	}

	scheduler := entitlement.NewScheduler(svc, cfg.SyncInterval)
	listener := storekit.NewListener(provider, journal, svc, svc.VerifyWithBackend)
	listener.SetHooks(metrics.RecordListenerRestart, metrics.RecordDiscardedTransaction)

	handlers := api.NewHandlers(svc, scheduler, auditLog)

	// Watch .env for runtime-safe changes (log level, backend token)
	watcher, err := config.NewWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, .env changes will require restart")
	} else {
		watcher.SetChangeCallback(func(changes []string) {
			level, token := watcher.Values()
			logging.Init(logging.Config{
				Format:    cfg.LogFormat,
				Level:     level,
				Component: "entitlementd",
			})
			backendClient.SetToken(token)
		})
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer watcher.Stop()
	}

	// Background workers share one context so teardown cancels them together
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		listener.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		handlers.Hub().Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown incomplete")
	}

	wg.Wait()
	log.Info().Msg("Entitlement engine stopped")
}
