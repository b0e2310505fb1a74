package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/client"
	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/database"
	"github.com/noah-isme/gema-antiplagiat/internal/handler"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/queue"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
	"github.com/noah-isme/gema-antiplagiat/internal/router"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
	"github.com/noah-isme/gema-antiplagiat/pkg/wordcloud"
)

// NewFileAnalysis builds the analysis service and starts its worker pool.
func NewFileAnalysis(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	srv := newServer(cfg, config.ServiceFileAnalysis, logger)

	db, err := openDatabase(srv, cfg, &models.Report{})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; report listings are not cached")
			cache = nil
		} else {
			srv.onShutdown(func(context.Context) error { return cache.Close() })
		}
	}

	jobs, err := newAnalysisQueue(srv, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	reportRepo := repository.NewReportRepository(db)
	reports := service.NewReportService(reportRepo, cache, cfg.ReportsCacheTTL, logger)
	works := client.NewStoringClient(client.Config{BaseURL: cfg.FileStoringBaseURL, Timeout: cfg.UpstreamTimeout})
	cloudClient := wordcloud.New(wordcloud.Config{
		URL:      cfg.WordCloud.URL,
		MaxChars: cfg.WordCloud.MaxChars,
		Timeout:  cfg.WordCloud.Timeout,
	}, tracedHTTPClient(), logger)

	analysis := service.NewAnalysisService(reportRepo, works, service.NewPlagiarismChecker(cfg.Plagiarism), cloudClient, jobs, reports, service.AnalysisOptions{
		Burst:                cfg.Analysis.Burst,
		AdmitTimeout:         cfg.Analysis.AdmitTimeout,
		MetadataRetries:      cfg.Analysis.MetadataRetries,
		MetadataRetryInitial: cfg.Analysis.MetadataRetryInitial,
		ContentLimit:         int64(cfg.MaxUploadMB) * 1024 * 1024,
		WordCloudFallbackURL: cfg.WordCloud.FallbackURL,
		StaleAfter:           cfg.Analysis.StaleAfter,
	}, logger)

	if err := jobs.Start(analysis.RunAnalysis); err != nil {
		return nil, fmt.Errorf("start workers: %w", err)
	}
	srv.onShutdown(jobs.Stop)

	router.RegisterFileAnalysis(srv.App, cfg, router.FileAnalysisDependencies{
		AnalysisHandler: handler.NewAnalysisHandler(analysis, reports, logger),
	})

	return srv, nil
}

func newAnalysisQueue(srv *Server, cfg config.Config, logger zerolog.Logger) (queue.Queue, error) {
	local := queue.NewMemoryQueue(cfg.Analysis.Workers, cfg.Analysis.QueueSize, logger)
	if cfg.NATSURL == "" {
		return local, nil
	}

	conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		return nil, err
	}
	srv.onShutdown(func(context.Context) error {
		conn.Close()
		return nil
	})

	return queue.NewNATSQueue(conn, cfg.NATSSubject, "file-analysis", local, logger), nil
}
