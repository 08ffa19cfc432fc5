// Package app constructs every service from a resolved configuration.
//
// Construction order follows the data flow: the relational store, blob
// store and ledger first, then the claim store, verification engine,
// ingestion service and seed exchange on top of them.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/blob"
	"github.com/roach88/mnemosyne/internal/claims"
	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/config"
	"github.com/roach88/mnemosyne/internal/ingest"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/logger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/seed"
	"github.com/roach88/mnemosyne/internal/store"
	"github.com/roach88/mnemosyne/internal/verify"
)

// MemoryDB is the DBPath that keeps the relational store in memory.
const MemoryDB = ":memory:"

// App holds the wired services.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	DB     *store.Store
	Blobs  *blob.Store
	Ledger *ledger.Ledger

	Claims *claims.Store
	Engine *verify.Engine
	Ingest *ingest.Service
	Seed   *seed.Exchange
}

type options struct {
	fs     afero.Fs
	clock  clock.Clock
	logger *zap.Logger
}

// Option overrides a default collaborator.
type Option func(*options)

// WithFs sets the filesystem for blobs and ledgers. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock sets the timestamp source shared by every service.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. Defaults to one built from Config.Env.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wires an App. cfg must already be validated.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{fs: afero.NewOsFs(), clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}
	cfg.ApplyDefaults()

	policy, err := claims.ParseVotePolicy(cfg.VotePolicy)
	if err != nil {
		return nil, err
	}
	mode, err := seed.ParseImportMode(cfg.ImportMode)
	if err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		if log, err = logger.NewLogger(cfg.Env, cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	if cfg.DBPath != MemoryDB {
		if err := o.fs.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, ir.IOFailure("create data dir", filepath.Dir(cfg.DBPath), err)
		}
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	blobs, err := blob.Open(o.fs, cfg.BlobDir, blob.Options{
		CacheTTL:      cfg.BlobCacheTTL,
		CacheMaxBytes: cfg.BlobCacheMaxBytes,
		Metrics:       m,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	l, err := ledger.Open(o.fs, cfg.LedgerDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	cs := claims.New(l, db, claims.WithClock(o.clock), claims.WithPolicy(policy), claims.WithMetrics(m))
	return &App{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		DB:      db,
		Blobs:   blobs,
		Ledger:  l,
		Claims:  cs,
		Engine: verify.New(cs, db, l,
			verify.WithThreshold(cfg.Quorum),
			verify.WithClock(o.clock),
			verify.WithMetrics(m),
		),
		Ingest: ingest.New(blobs, db, l, ingest.WithClock(o.clock), ingest.WithMetrics(m)),
		Seed: seed.New(db,
			seed.WithMode(mode),
			seed.WithBlobs(blobs),
			seed.WithClock(o.clock),
			seed.WithMetrics(m),
		),
	}, nil
}

// Context returns ctx carrying the App logger.
func (a *App) Context(ctx context.Context) context.Context {
	return logger.ContextWithLogger(ctx, a.Logger)
}

// Stats summarizes what the stores hold.
type Stats struct {
	Documents  int               `json:"documents"`
	Claims     map[ir.Status]int `json:"claims"`
	Ledger     map[ir.Stream]int `json:"ledger"`
	Quorum     int               `json:"quorum"`
	VotePolicy string            `json:"vote_policy"`
}

// Stats counts documents, claims by status and ledger records per stream.
// Ledger counts are full scans.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	docs, err := a.DB.CountDocuments(ctx)
	if err != nil {
		return Stats{}, err
	}
	byStatus, err := a.DB.CountClaimsByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	streams := make(map[ir.Stream]int, len(ir.Streams))
	for _, s := range ir.Streams {
		n, err := a.Ledger.Count(ctx, s)
		if err != nil {
			return Stats{}, err
		}
		streams[s] = n
	}
	return Stats{
		Documents:  docs,
		Claims:     byStatus,
		Ledger:     streams,
		Quorum:     a.Engine.Threshold(),
		VotePolicy: string(a.Claims.Policy()),
	}, nil
}

// Close releases the database and flushes the logger.
func (a *App) Close() error {
	// Sync fails on terminals and pipes; only the close error matters.
	_ = a.Logger.Sync()
	return a.DB.Close()
}
