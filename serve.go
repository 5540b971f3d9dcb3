package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wablast/internal/campaign"
	"wablast/internal/config"
	"wablast/internal/contacts"
	httpapi "wablast/internal/http"
	"wablast/internal/media"
	"wablast/internal/metrics"
	"wablast/internal/notify"
	"wablast/internal/report"
	"wablast/internal/storage"
	"wablast/internal/wa"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher and its control API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, dir := range []string{cfg.Paths.ContactsDir, cfg.Paths.MediaDir, cfg.Paths.UploadsDir, cfg.Paths.ReportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wa.SetDeviceName(cfg.Channel.DeviceName)
	container, err := wa.NewContainer(ctx, cfg.Storage.DSN, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	hub := notify.NewHub(logger.Named("ws"))
	sink := notify.NewMulti(hub, notify.LogSink{Logger: logger.Named("events")})

	supervisor := wa.NewSupervisor(wa.NewFactory(container, logger), sink, logger.Named("channel"), m, cfg.Channel.RestartCooldown)
	reports := report.NewWriter(cfg.Paths.ReportsDir, store, sink, logger.Named("report"))
	mediaStore := media.Store{Dir: cfg.Paths.MediaDir}

	ctrl := campaign.New(context.Background(), campaign.Deps{
		Channel:   supervisor,
		Templates: store,
		Media:     mediaStore,
		Progress:  store,
		Reports:   reports,
		Address:   campaign.Addresser{CountryCode: cfg.Channel.DefaultCountryCode, Server: cfg.Channel.AddressServer},
		Sink:      sink,
		Logger:    logger.Named("campaign"),
		Metrics:   m,
	})
	supervisor.OnDown(ctrl.OnChannelDown)
	hub.Greeting = func() []notify.Event {
		return append(supervisor.Greeting(), notify.Event{Type: notify.TypeCampaignState, Data: ctrl.Snapshot()})
	}

	api := &httpapi.API{
		Store:      store,
		Campaign:   ctrl,
		Channel:    supervisor,
		Contacts:   contacts.Dir{Path: cfg.Paths.ContactsDir},
		Media:      mediaStore,
		Reports:    reports,
		Hub:        hub,
		Metrics:    m,
		MetricsURL: cfg.Metrics.Path,
		Defaults:   cfg.CampaignDefaults(),
		UploadsDir: cfg.Paths.UploadsDir,
		Logger:     logger.Named("http"),
	}
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	supervisor.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	ctrl.Close()
	supervisor.Stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
