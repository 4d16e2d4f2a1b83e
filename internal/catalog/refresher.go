package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/versionsql/internal/curseforge"
	"github.com/kalambet/versionsql/internal/metrics"
	"github.com/kalambet/versionsql/internal/storage"
)

// DefaultInterval is how old the mirror may get before a query triggers a reload.
const DefaultInterval = 5 * time.Minute

// Source reads the upstream catalog.
type Source interface {
	Versions(ctx context.Context) ([]curseforge.Version, error)
	VersionTypes(ctx context.Context) ([]curseforge.VersionType, error)
}

// Store persists catalog snapshots.
type Store interface {
	ReplaceCatalog(ctx context.Context, c storage.Catalog) error
}

// Refresher keeps the local mirror no older than its interval.
type Refresher struct {
	source   Source
	store    Store
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	lastLoad time.Time
}

// NewRefresher creates a Refresher. If interval is <= 0, it defaults to five minutes.
func NewRefresher(source Source, store Store, interval time.Duration, m *metrics.Metrics) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Refresher{
		source:   source,
		store:    store,
		interval: interval,
		metrics:  m,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// LastLoad returns the time of the last successful load, zero if none.
func (r *Refresher) LastLoad() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLoad
}

// Stale reports whether the mirror is older than the interval.
func (r *Refresher) Stale() bool {
	last := r.LastLoad()
	return last.IsZero() || r.now().Sub(last) > r.interval
}

// EnsureFresh reloads the catalog when it is stale.
func (r *Refresher) EnsureFresh(ctx context.Context) error {
	if !r.Stale() {
		return nil
	}
	return r.Load(ctx)
}

// Load fetches both upstream collections and replaces the mirror.
// Concurrent callers share a single in-flight load; each caller stops
// waiting when its own ctx ends, the load itself carries on.
func (r *Refresher) Load(ctx context.Context) error {
	ch := r.group.DoChan("load", func() (any, error) {
		return nil, r.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (r *Refresher) load(ctx context.Context) error {
	r.logger.Info("fetching API data")

	var (
		versions []curseforge.Version
		types    []curseforge.VersionType
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		versions, err = r.source.Versions(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		types, err = r.source.VersionTypes(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		r.metrics.Refreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("fetching catalog: %w", err)
	}

	fetchedAt := r.now()
	snapshot := storage.Catalog{
		Versions:     make([]storage.Version, len(versions)),
		VersionTypes: make([]storage.VersionType, len(types)),
		FetchedAt:    fetchedAt,
	}
	for i, v := range versions {
		snapshot.Versions[i] = storage.Version{
			ID:                int64(v.ID),
			GameVersionTypeID: int64(v.GameVersionTypeID),
			Name:              v.Name,
			Slug:              v.Slug,
		}
	}
	for i, vt := range types {
		snapshot.VersionTypes[i] = storage.VersionType{ID: int64(vt.ID), Name: vt.Name, Slug: vt.Slug}
	}

	if err := r.store.ReplaceCatalog(ctx, snapshot); err != nil {
		r.metrics.Refreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("storing catalog: %w", err)
	}

	r.mu.Lock()
	r.lastLoad = fetchedAt
	r.mu.Unlock()

	r.metrics.Refreshes.WithLabelValues("ok").Inc()
	r.metrics.CatalogRows.WithLabelValues("versions").Set(float64(len(versions)))
	r.metrics.CatalogRows.WithLabelValues("versionTypes").Set(float64(len(types)))
	r.logger.Info("inserted into database", "versions", len(versions), "version_types", len(types))
	return nil
}
