// Package app wires storage and the analytics components from a Config.
package app

import (
	"context"
	"fmt"
	"time"

	"mcp-glucose-insights/internal/config"
	"mcp-glucose-insights/internal/correlation"
	"mcp-glucose-insights/internal/insights"
	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/patterns"
	"mcp-glucose-insights/internal/storage"
	"mcp-glucose-insights/internal/timeline"
)

type App struct {
	Store      *storage.SQLiteStorage
	Cache      storage.InsightCache
	Engine     *correlation.Engine
	Aggregator *timeline.Aggregator
	Generator  *insights.Generator
	Detector   *patterns.Detector
	Location   *time.Location
	Log        *logger.Logger

	closers []func() error
}

// Open builds every component over the SQLite store, with the insight cache
// on SQLite or Redis depending on cfg.Cache.Backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a := &App{Store: store, Location: loc, Log: log}
	a.closers = append(a.closers, store.Close)

	var cache storage.InsightCache = store
	if cfg.Cache.Backend == config.CacheRedis {
		rc, err := storage.NewRedisInsightCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		cache = rc
	}
	a.Cache = cache

	a.wire(store, store, cache, cfg.Correlation.Workers)
	log.Info("Analytics components ready", "db", cfg.Storage.DBPath, "cache", cfg.Cache.Backend, "timezone", loc.String())
	return a, nil
}

// New wires components over caller-supplied repositories.
func New(glucose storage.GlucoseRepo, meals storage.MealRepo, cache storage.InsightCache, loc *time.Location, log *logger.Logger) *App {
	if loc == nil {
		loc = time.UTC
	}
	a := &App{Cache: cache, Location: loc, Log: log}
	a.wire(glucose, meals, cache, correlation.DefaultWorkers)
	return a
}

func (a *App) wire(glucose storage.GlucoseRepo, meals storage.MealRepo, cache storage.InsightCache, workers int) {
	a.Engine = correlation.NewEngine(glucose, meals, a.Log, workers)
	a.Aggregator = timeline.NewAggregator(glucose, meals, a.Location, a.Log)
	a.Generator = insights.NewGenerator(a.Engine, a.Aggregator, cache, a.Log)
	a.Detector = patterns.NewDetector(cache, a.Location, a.Log)
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
