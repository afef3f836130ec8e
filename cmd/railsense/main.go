package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/agent"
	"github.com/railsense/railsense/internal/ai"
	"github.com/railsense/railsense/internal/config"
	"github.com/railsense/railsense/internal/db"
	"github.com/railsense/railsense/internal/detect"
	"github.com/railsense/railsense/internal/embedcache"
	"github.com/railsense/railsense/internal/filestore"
	"github.com/railsense/railsense/internal/handler"
	"github.com/railsense/railsense/internal/ingest"
	"github.com/railsense/railsense/internal/job"
	"github.com/railsense/railsense/internal/knowledge"
	"github.com/railsense/railsense/internal/middleware"
	"github.com/railsense/railsense/internal/plot"
	"github.com/railsense/railsense/internal/repo"
	"github.com/railsense/railsense/internal/schedule"
	"github.com/railsense/railsense/internal/service"
)

const tsLayout = "2006-01-02 15:04:05"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "railsense",
		Short: "sensor anomaly detection and explanation service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(newIngestCmd(&configPath))
	rootCmd.AddCommand(newDetectCmd(&configPath))
	rootCmd.AddCommand(newTuneCmd(&configPath))
	rootCmd.AddCommand(newIndexCmd(&configPath))
	rootCmd.AddCommand(newServeCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func newIngestCmd(configPath *string) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "load raw sensor CSV rows into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}
			_, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			file, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer file.Close()

			loader := ingest.NewLoader(repo.NewReadingRepo(conn))
			report, err := loader.Load(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Printf("rows=%d malformed=%d values=%d skipped=%d\n",
				report.RowsTotal, report.RowsMalformed, report.ValuesLoaded, report.ValuesSkipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to sensor CSV file")
	return cmd
}

func newDetectCmd(configPath *string) *cobra.Command {
	var fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "score sensors and consolidate anomaly events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx := cmd.Context()

			readings := repo.NewReadingRepo(conn)
			from, to, err := resolveWindow(ctx, readings, fromStr, toStr)
			if err != nil {
				return err
			}
			detector := detect.New(
				readings,
				repo.NewResultRepo(conn),
				repo.NewEventRepo(conn),
				detect.OptionsFromConfig(cfg.Detect),
			)
			summary, err := detector.Run(ctx, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("sensors=%d skipped=%d rows=%d events=%d\n",
				summary.SensorsScored, len(summary.SensorsSkipped), summary.ResultRows, summary.Events)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "window start, 'YYYY-MM-DD HH:MM:SS' (default: earliest reading)")
	cmd.Flags().StringVar(&toStr, "to", "", "window end, 'YYYY-MM-DD HH:MM:SS' (default: latest reading)")
	return cmd
}

func newTuneCmd(configPath *string) *cobra.Command {
	var sensors []string
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "randomized forecaster hyperparameter search",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx := cmd.Context()

			readings := repo.NewReadingRepo(conn)
			from, to, err := resolveWindow(ctx, readings, "", "")
			if err != nil {
				return err
			}
			tuner := detect.NewTuner(
				readings,
				time.Duration(cfg.Detect.ResampleSecs)*time.Second,
				cfg.Detect.SeasonLength,
			)
			for _, sensor := range detect.TunableSensors(sensors) {
				best, _, err := tuner.Search(ctx, sensor, from, to,
					cfg.Tune.Trials, cfg.Tune.Workers, cfg.Tune.Seed)
				if err != nil {
					logutil.GetLogger(ctx).Warn("tuning failed",
						zap.String("sensor", sensor), zap.Error(err))
					continue
				}
				fmt.Printf("%s: alpha=%.3f beta=%.3f gamma=%.3f mae=%.4f\n",
					sensor, best.Params.Alpha, best.Params.Beta, best.Params.Gamma, best.MAE)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sensors, "sensor", nil, "analog sensors to tune (default: all)")
	return cmd
}

func newIndexCmd(configPath *string) *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "chunk and embed reference documentation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if docPath == "" {
				return fmt.Errorf("--doc is required")
			}
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
			if err != nil {
				return fmt.Errorf("init ai provider: %w", err)
			}
			if !provider.Available() {
				return fmt.Errorf("ai provider %s has no credentials; indexing needs embeddings", provider.Name())
			}
			embedder := embedcache.Wrap(provider,
				cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLMins)*time.Minute)
			indexer := knowledge.NewIndexer(embedder, cfg.AI.EmbedModel, cfg.AI.EmbedDim, repo.NewChunkRepo(conn))
			count, err := indexer.IndexFile(cmd.Context(), docPath)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d chunks from %s\n", count, docPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "path to .pdf/.md/.txt document")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("file_store", cfg.FileStore.Type),
	)

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	if !provider.Available() {
		return fmt.Errorf("ai provider %s has no credentials; the chat path cannot start without them", provider.Name())
	}
	chatProvider, ok := provider.(ai.IChatProvider)
	if !ok {
		return fmt.Errorf("ai provider %s does not support tool calling; use openai for serving", provider.Name())
	}

	readingRepo := repo.NewReadingRepo(conn)
	resultRepo := repo.NewResultRepo(conn)
	eventRepo := repo.NewEventRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	embedder := embedcache.Wrap(provider,
		cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLMins)*time.Minute)
	plotter := plot.NewPlotter(readingRepo, resultRepo, store)
	toolset := agent.NewToolset(
		eventRepo,
		resultRepo,
		readingRepo,
		plotter,
		time.Duration(cfg.Detect.MinEventSecs)*time.Second,
		int64(cfg.Detect.ResampleSecs),
	)
	explainer := agent.New(chatProvider, embedder, chunkRepo, toolset, agent.Options{
		ChatModel:  cfg.AI.ChatModel,
		EmbedModel: cfg.AI.EmbedModel,
		TopK:       cfg.AI.TopK,
		MaxRounds:  cfg.AI.MaxToolRounds,
		Timeout:    time.Duration(cfg.AI.TimeoutSecs) * time.Second,
	})

	chatService := service.NewChatService(explainer, time.Duration(cfg.Session.IdleMinutes)*time.Minute)

	deps := handler.RouterDeps{
		Session: handler.NewSessionHandler(chatService, []byte(cfg.Session.Secret),
			time.Duration(cfg.Session.TTLHours)*time.Hour),
		Chat:          handler.NewChatHandler(chatService),
		Files:         handler.NewFileHandler(store),
		Web:           handler.NewWebHandler(),
		SessionSecret: []byte(cfg.Session.Secret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORS),
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatService.StartSweeper(ctx, time.Minute)

	scheduler := schedule.NewCronScheduler()
	if cfg.Jobs.DetectCron != "" {
		detector := detect.New(readingRepo, resultRepo, eventRepo, detect.OptionsFromConfig(cfg.Detect))
		lookback := 3 * time.Duration(cfg.Detect.SeasonLength*cfg.Detect.ResampleSecs) * time.Second
		if err := scheduler.AddJob(job.NewDetectJob(detector, readingRepo, lookback), cfg.Jobs.DetectCron); err != nil {
			return err
		}
	}
	if cfg.Jobs.PlotCleanupCron != "" {
		ttl := time.Duration(cfg.Jobs.PlotTTLHours) * time.Hour
		if err := scheduler.AddJob(job.NewPlotCleanupJob(store, ttl), cfg.Jobs.PlotCleanupCron); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func resolveWindow(ctx context.Context, readings *repo.ReadingRepo, fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		from, err = time.ParseInLocation(tsLayout, fromStr, time.UTC)
		if err != nil {
			return from, to, fmt.Errorf("parse --from: %w", err)
		}
	} else {
		from, err = readings.EarliestTs(ctx)
		if err != nil {
			return from, to, err
		}
	}
	if toStr != "" {
		to, err = time.ParseInLocation(tsLayout, toStr, time.UTC)
		if err != nil {
			return from, to, fmt.Errorf("parse --to: %w", err)
		}
	} else {
		to, err = readings.LatestTs(ctx)
		if err != nil {
			return from, to, err
		}
	}
	if from.IsZero() || to.IsZero() {
		return from, to, fmt.Errorf("no readings ingested yet")
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("window start must be before end")
	}
	return from, to, nil
}
