package main

import (
	"flag"

	"postfetcher/internal/api"
	"postfetcher/internal/config"
	"postfetcher/internal/db"
	"postfetcher/internal/fetcher"
	"postfetcher/internal/queue"
	"postfetcher/internal/stats"
	"postfetcher/internal/writer"
	"postfetcher/pkg/logger"

	"postfetcher/internal/models"
)

func main() {
	configPath := flag.String("config", "postfetcher.yaml", "path to config file")
	flag.Parse()

	logger.Init()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger.Fatal(err)
	}

	// Seen-post store: postgres when configured, sqlite otherwise.
	var seen fetcher.SeenStore
	if cfg.PostgresDSN != "" {
		pg, err := db.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			logger.Logger.Fatal(err)
		}
		if err := pg.Create(); err != nil {
			logger.Logger.Fatal(err)
		}
		if err := pg.Ping(); err != nil {
			logger.Logger.Fatal("Error pinging postgres: ", err)
		}
		seen = pg
	} else {
		lite, err := db.NewSqlite(cfg.SqlitePath)
		if err != nil {
			logger.Logger.Fatal(err)
		}
		if err := lite.Create(); err != nil {
			logger.Logger.Fatal(err)
		}
		seen = lite
	}

	// Snapshot persistence: redis when configured, file checkpoints otherwise.
	var snapshots queue.SnapshotStore
	if cfg.RedisAddr != "" {
		snapshots, err = queue.NewRedisSnapshot(cfg.RedisAddr)
		if err != nil {
			logger.Logger.Fatal(err)
		}
	} else {
		snapshots, err = queue.NewFileSnapshot(cfg.CheckpointDir)
		if err != nil {
			logger.Logger.Fatal(err)
		}
	}

	var notifier fetcher.Notifier = writer.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = writer.NewWebhookNotifier(cfg.WebhookURL)
	}

	collector := stats.NewCollector()
	pending := queue.NewStore()

	f := fetcher.New(fetcher.Config{
		APIBase:          cfg.API.BaseURL,
		APIFilter:        cfg.API.Filter,
		APIKey:           cfg.API.Key,
		SiteMinimums:     cfg.SiteMinimums,
		TimeSensitive:    cfg.TimeSensitiveSites,
		WindowStartHour:  cfg.WindowStartHour,
		WindowEndHour:    cfg.WindowEndHour,
		FirehoseSite:     cfg.FirehoseSite,
		IgnoredQuestions: cfg.IgnoredQuestions,
	}, fetcher.Deps{
		Queue:     pending,
		Snapshots: snapshots,
		Seen:      seen,
		Classify:  passthroughClassifier{},
		Handler:   logSpamHandler{},
		Watcher:   logEditWatcher{},
		Notifier:  notifier,
		Stats:     collector,
	}, cfg.TaskWorkers)

	// Resume where the previous process stopped.
	if snap, err := snapshots.LoadQueue(); err != nil {
		logger.Logger.Printf("Could not restore queue snapshot: %v", err)
	} else {
		pending.Restore(snap)
	}
	if maxIDs, err := snapshots.LoadMaxIDs(); err != nil {
		logger.Logger.Printf("Could not restore max ids: %v", err)
	} else {
		f.RestoreMaxIDs(maxIDs)
	}

	api.Run(cfg.ListenAddr, &api.Handler{Fetcher: f, Stats: collector}, cfg.InboundKey)
}

// The real classifier, spam handler and edit watcher are separate services
// plugged in through the fetcher interfaces; these stand-ins keep a bare
// deployment running and observable.

type passthroughClassifier struct{}

func (passthroughClassifier) Check(post *models.Post) (models.ScanResult, error) {
	return models.ScanResult{}, nil
}

type logSpamHandler struct{}

func (logSpamHandler) HandleSpam(post *models.Post, result models.ScanResult) error {
	logger.Logger.Printf("SPAM %s/%d (%v): %s", post.Site, post.ID, result.Reasons, result.Why)
	return nil
}

type logEditWatcher struct{}

func (logEditWatcher) Subscribe(site string, questionIDs []int) error {
	logger.Logger.Printf("edit-watch subscribe %s %v", site, questionIDs)
	return nil
}
