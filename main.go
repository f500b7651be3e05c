package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/config"
	"github.com/bsaid97/go-geojson-cleaner/events"
	"github.com/bsaid97/go-geojson-cleaner/handlers"
	"github.com/bsaid97/go-geojson-cleaner/history"
	"github.com/bsaid97/go-geojson-cleaner/logger"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           "geoclean",
	Short:         "Validate, repair and deduplicate GeoJSON geometries",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Setup(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what is built once per process and shared by every run.
type app struct {
	cfg       config.Config
	pool      *utils.WorkerPool
	validator *handlers.Validator
	pipeline  *handlers.Pipeline
	publisher events.Publisher
	history   history.Log
	log       *slog.Logger
}

type appOptions struct {
	// Publisher overrides the configured backend when set.
	Publisher events.Publisher
	Publish   bool
	Trigger   handlers.RepairTrigger
	History   history.Log
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	log := logger.L()

	trigger := opts.Trigger
	if trigger == "" {
		parsed, err := handlers.ParseRepairTrigger(cfg.RepairTrigger)
		if err != nil {
			return nil, err
		}
		trigger = parsed
	}

	publisher := opts.Publisher
	if publisher == nil && opts.Publish {
		publisher = newPublisher(ctx, cfg.Events, log)
	}

	hist := opts.History
	if hist == nil {
		var err error
		hist, err = newHistory(ctx, cfg.History)
		if err != nil {
			if publisher != nil {
				publisher.Close()
			}
			return nil, err
		}
	}

	a := &app{
		cfg:       cfg,
		pool:      utils.NewWorkerPool(cfg.Workers),
		validator: handlers.NewValidator(),
		publisher: publisher,
		history:   hist,
		log:       log,
	}
	a.pipeline = handlers.NewPipeline(handlers.Options{
		Pool:      a.pool,
		Validator: a.validator,
		Repairer:  handlers.NewRepairer(cfg.BufferQuadSegs),
		Trigger:   trigger,
		Publish:   opts.Publish,
		Publisher: publisher,
		Topic:     cfg.Events.Topic,
		Logger:    log,
	})
	return a, nil
}

// newPublisher connects the configured broker. A broker that cannot be reached
// leaves the publisher nil so runs still complete and sends are logged no-ops.
func newPublisher(ctx context.Context, ec config.EventsConfig, log *slog.Logger) events.Publisher {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch ec.Backend {
	case "kafka":
		p, err := events.NewKafkaPublisher(ctx, ec.KafkaBrokers)
		if err != nil {
			log.Error("kafka_producer_init_error", "brokers", ec.KafkaBrokers, "err", err)
			return nil
		}
		return p
	case "redis":
		p, err := events.NewRedisPublisher(ctx, ec.RedisAddr, ec.RedisPassword, ec.RedisDB)
		if err != nil {
			log.Error("redis_publisher_init_error", "addr", ec.RedisAddr, "err", err)
			return nil
		}
		return p
	}
	return events.NopPublisher{}
}

func newHistory(ctx context.Context, hc config.HistoryConfig) (history.Log, error) {
	if hc.Backend != "mongo" {
		return history.NewMemoryLog(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return history.NewMongoLog(ctx, hc.MongoURI, hc.Database, hc.Collection)
}

func (a *app) Close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher_close_error", "err", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(ctx); err != nil {
			a.log.Warn("history_close_error", "err", err)
		}
	}
}
