package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commonlogger "bnn-rehab/common/logger"
	"bnn-rehab/common/mqtt"
	"bnn-rehab/internal/audit"
	"bnn-rehab/internal/config"
	"bnn-rehab/internal/directory"
	httpapi "bnn-rehab/internal/http"
	"bnn-rehab/internal/mapview"
	"bnn-rehab/internal/metrics"
	"bnn-rehab/internal/models"
	"bnn-rehab/internal/notify"
	"bnn-rehab/internal/service"
	"bnn-rehab/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "bnn-rehab"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "BNN rehabilitation case-record service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Mirror the case-record collection and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the sample case records into the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current case records to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runExport(cmd.Context(), out, timeout)
		},
	}
	cmd.Flags().String("out", "pengajuan.xlsx", "output file")
	cmd.Flags().Duration("timeout", 15*time.Second, "how long to wait for the first snapshot")
	return cmd
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := commonlogger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	collectors := metrics.New()

	opts := store.Options{
		Path:     cfg.RemoteLog.Collection,
		AutoSeed: cfg.RemoteLog.AutoSeed,
		Observer: collectors,
	}
	var auditLister httpapi.AuditLister
	if cfg.Audit.Enabled {
		repo, err := startAudit(ctx, cfg, b, logger, &opts)
		if err != nil {
			return err
		}
		auditLister = repo
	}

	st := store.NewRecordStore(b.log, opts, logger)

	hooks := []mapview.ReconcileHook{collectors.MarkersReconciled}
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		defer mqttClient.Disconnect()
		publisher := notify.NewMarkerPublisher(mqttClient, cfg.MQTT.MarkerTopic, logger)
		hooks = append(hooks, publisher.Hook)
		go publisher.Run(ctx)
	}

	surface := mapview.NewGeoJSONSurface()
	projection := mapview.NewProjection(st, surface, mapview.Options{
		FocusDelay:  cfg.Map.FocusDelay,
		SettleDelay: cfg.Map.SettleDelay,
		View:        mapview.DefaultView,
		Hooks:       hooks,
	}, logger)

	if err := st.Start(ctx); err != nil {
		projection.Close()
		return err
	}
	projection.Focus()

	router := httpapi.NewRouter(logger)
	router.RegisterRecordRoutes(httpapi.NewRecordsHandler(st, auditLister, logger))
	router.RegisterInfoRoutes(httpapi.NewInfoHandler(
		surface,
		directory.New(directory.DefaultInstitutions, st),
		service.NewNewsClient(cfg.News.URL, logger),
		st,
	))
	router.HandleHandler("/metrics", collectors.Handler())

	srv := service.NewAPIServer(cfg.HTTP.Addr, router, service.ServerOptions{
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, logger)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runErr := srv.Run(sigCtx)
	if runErr != nil {
		logger.Error("HTTP server stopped", zap.Error(runErr))
	} else {
		logger.Info("Shutting down")
	}

	projection.Close()
	_ = st.Close()
	cancel()

	return runErr
}

// startAudit wires the stream recorder into opts and starts the persisting consumer.
func startAudit(ctx context.Context, cfg *config.Config, b *backend, logger *zap.Logger, opts *store.Options) (*audit.AuditRepository, error) {
	rc, err := b.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	db, err := b.postgres(ctx)
	if err != nil {
		return nil, err
	}

	repo := audit.NewAuditRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	opts.Audit = audit.NewStreamRecorder(rc, cfg.Audit.Stream, cfg.Audit.MaxLen, logger)

	consumer := audit.NewConsumer(rc, repo, logger, cfg.Audit.Stream, cfg.Audit.Group, cfg.Audit.Consumer, 50)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("Audit consumer stopped", zap.Error(err))
		}
	}()
	return repo, nil
}

func runSeed(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.RemoteLog.Backend == config.BackendMemory {
		return errors.New("seed needs a persistent backend; set LOG_BACKEND to redis or postgres")
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	seeds := store.SeedRecords(time.Now())
	if err := store.WriteSeeds(ctx, b.log, cfg.RemoteLog.Collection, seeds); err != nil {
		return err
	}
	logger.Info("Seed records written",
		zap.String("collection", cfg.RemoteLog.Collection),
		zap.Int("seed_count", len(seeds)),
	)
	return nil
}

func runExport(ctx context.Context, out string, timeout time.Duration) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	records, err := firstSnapshot(ctx, b, cfg.RemoteLog.Collection, timeout, logger)
	if err != nil {
		return err
	}

	data, err := httpapi.GenerateRecordsExport(records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	logger.Info("Records exported", zap.String("file", out), zap.Int("record_count", len(records)))
	return nil
}

// firstSnapshot subscribes once and returns the first published list.
func firstSnapshot(ctx context.Context, b *backend, path string, timeout time.Duration, logger *zap.Logger) ([]models.CaseRecord, error) {
	st := store.NewRecordStore(b.log, store.Options{Path: path}, logger)
	defer st.Close()

	ready := make(chan []models.CaseRecord, 1)
	st.OnChange(func(list []models.CaseRecord) {
		select {
		case ready <- list:
		default:
		}
	})
	if err := st.Start(ctx); err != nil {
		return nil, err
	}

	select {
	case list := <-ready:
		return list, nil
	case err := <-st.Errors():
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("no snapshot of %s within %s", path, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
