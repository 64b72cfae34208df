// Package backend selects and opens the posting store named by
// storage.backend in the configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/engine"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/pgstore"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/redisstore"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/shard"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/resilience"
)

// Opened is an open store plus anything that must be closed with it.
type Opened struct {
	storage.Store
	closers []func() error
	flush   func(ctx context.Context)
}

// StartBackground starts periodic flushing for local backends.
func (o *Opened) StartBackground(ctx context.Context) {
	if o.flush != nil {
		o.flush(ctx)
	}
}

// Close closes the store and then its clients.
func (o *Opened) Close() error {
	errs := []error{o.Store.Close()}
	for _, c := range o.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Open opens the configured backend, retrying connection and ping failures.
// Failure here is a start-up precondition error.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Opened, error) {
	logger := slog.Default().With("component", "storage-backend", "backend", cfg.Storage.Backend)
	retryCfg := resilience.RetryConfig{MaxAttempts: cfg.Storage.OpenRetries}

	var opened *Opened
	err := resilience.Retry(ctx, "open-store", retryCfg, func() error {
		o, err := open(cfg, m)
		if err != nil {
			return err
		}
		if err := o.Ping(ctx); err != nil {
			o.Close()
			return fmt.Errorf("pinging store: %w", err)
		}
		opened = o
		return nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable, err.Error())
	}
	logger.Info("posting store opened")
	return opened, nil
}

func open(cfg *config.Config, m *metrics.Metrics) (*Opened, error) {
	engineCfg := engine.Config{
		DataDir:        cfg.Storage.DataDir,
		SegmentMaxSize: cfg.Storage.SegmentMaxSize,
		FlushInterval:  cfg.Storage.FlushInterval,
	}
	switch cfg.Storage.Backend {
	case config.BackendEngine:
		e, err := engine.New(engineCfg, m)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: e, flush: e.StartFlushLoop}, nil
	case config.BackendSharded:
		r, err := shard.NewRouter(engineCfg, cfg.Storage.NumShards, m)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: r, flush: r.StartFlushLoops}, nil
	case config.BackendRedis:
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: redisstore.New(client, cfg.Redis.PostingsKey, cfg.Storage.ScanBatchSize)}, nil
	case config.BackendPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := client.Migrate(context.Background()); err != nil {
			client.Close()
			return nil, err
		}
		return &Opened{Store: pgstore.New(client.DB), closers: []func() error{client.Close}}, nil
	default:
		return nil, resilience.Permanent(fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend))
	}
}
