package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sitescan/internal/api"
	"sitescan/internal/auth"
	"sitescan/internal/config"
	"sitescan/internal/models"
	"sitescan/internal/redis"
	"sitescan/internal/scan"
	"sitescan/internal/search"
	"sitescan/internal/service/account"
	"sitescan/internal/service/ai"
	"sitescan/internal/storage"
	"sitescan/internal/uploads"
)

// app holds every long-lived dependency built from config.
type app struct {
	db       *sql.DB
	rdb      *redis.Client
	uploads  *uploads.Store
	scans    *storage.ScanRepository
	pipeline *scan.Pipeline
	handler  *api.Handler
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
	} else {
		log.Info("redis not configured, search cache and token denylist stay in memory")
	}

	a.uploads, err = uploads.NewStore(cfg.Uploads.Dir, cfg.Uploads.PublicBaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	chatModel, err := ai.NewChatModel(ctx, cfg.Model.Provider, cfg.ActiveProvider(), cfg.Model.MaxTokens)
	if err != nil {
		a.Close()
		return nil, err
	}
	vision := ai.NewVisionClient(chatModel, cfg.Model.Timeout(), cfg.Model.MaxConcurrent)

	prompts, err := scan.LoadPrompts(cfg.Pipeline.PromptsFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	serp := search.NewSerpClient(cfg.Search.SerpAPIKey,
		search.WithBaseURL(cfg.Search.SerpAPIBaseURL),
		search.WithRateLimit(cfg.Search.RatePerSec),
		search.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
	)
	searcher := buildSearcher(ctx, cfg.Search, serp, a.rdb, log)

	a.scans = storage.NewScanRepository(db)
	a.pipeline = scan.NewPipeline(scan.Deps{
		Model:     vision,
		Prompts:   prompts,
		MaxTokens: cfg.Model.MaxTokens,
		Lens:      serp,
		Search:    searcher,
		Store:     a.scans,
		Log:       log.Named("scan"),
	}, scan.Options{
		FallbackLabel:     models.Classification(cfg.Pipeline.FallbackLabel),
		EntityConcurrency: cfg.Pipeline.EntityConcurrency,
		ParseRetries:      cfg.Pipeline.ParseRetries,
	})

	authService, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL(), a.rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = api.NewHandler(api.Deps{
		Scanner:        a.pipeline,
		Scans:          a.scans,
		Uploads:        a.uploads,
		Accounts:       account.NewService(storage.NewUserRepository(db), cfg.Auth.BcryptCost),
		Auth:           authService,
		BodyLimit:      cfg.Server.BodyLimitMB << 20,
		TrustedProxies: cfg.Server.TrustedProxies,
		Log:            log.Named("api"),
	})
	return a, nil
}

// buildSearcher chains SerpAPI with the optional eino search tools, then
// adds the redis cache and the process-wide concurrency gate.
func buildSearcher(ctx context.Context, cfg config.SearchConfig, serp *search.SerpClient, rdb *redis.Client, log *zap.Logger) search.Searcher {
	var providers []search.Provider
	if serp.Configured() {
		providers = append(providers, search.Provider{Name: "serpapi", Searcher: serp})
	}
	if google, err := search.NewGoogleSearcher(ctx, cfg.GoogleAPIKey, cfg.GoogleEngineID); err == nil {
		providers = append(providers, search.Provider{Name: google.Name(), Searcher: google})
	} else if !errors.Is(err, search.ErrNotConfigured) {
		log.Warn("google search disabled", zap.Error(err))
	}
	if cfg.DuckDuckGo {
		if ddg, err := search.NewDuckDuckGoSearcher(ctx); err == nil {
			providers = append(providers, search.Provider{Name: ddg.Name(), Searcher: ddg})
		} else {
			log.Warn("duckduckgo search disabled", zap.Error(err))
		}
	}
	if len(providers) == 0 {
		log.Warn("no search provider configured, enrichment links will be empty")
	}

	chain := search.NewChain(log.Named("search"), providers...)
	cached := search.NewCache(chain, rdb, time.Duration(cfg.CacheTTLMins)*time.Minute, log.Named("search"))
	return search.NewGate(cached, cfg.MaxConcurrent)
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
