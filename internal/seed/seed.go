// Package seed exports and imports full-state snapshots of the document
// index and the claims table, for backup and for seeding another instance.
//
// Snapshots carry relational rows only. Votes and ledger events are not
// part of a snapshot and are never written by an import.
package seed

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/blob"
	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/logger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
)

// Snapshot is the exchange payload.
type Snapshot struct {
	Documents []ir.Document `json:"documents" yaml:"documents"`
	Claims    []ir.Claim    `json:"claims" yaml:"claims"`
}

// ImportMode selects how incoming claims are matched against existing rows.
type ImportMode string

const (
	// ModeDedup skips a claim whose text digest already exists and maps its
	// id to the existing row.
	ModeDedup ImportMode = "dedup"
	// ModeAppend always inserts, so re-importing a snapshot duplicates claims.
	ModeAppend ImportMode = "append"
)

// ParseImportMode validates a mode name. Empty means dedup.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(s) {
	case "", ModeDedup:
		return ModeDedup, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", ir.Invalid("unknown import mode %q: use dedup or append", s)
	}
}

// ImportResult reports what an import wrote. ClaimIDRemap maps an incoming
// claim id to the row id it ended up under, for every id that changed.
type ImportResult struct {
	Documents    int             `json:"documents_count"`
	Claims       int             `json:"claims_count"`
	Deduplicated int             `json:"deduplicated"`
	ClaimIDRemap map[int64]int64 `json:"claim_id_remap"`
}

// Exchange reads and writes snapshots directly against the relational store.
type Exchange struct {
	db      *store.Store
	blobs   *blob.Store
	mode    ImportMode
	clock   clock.Clock
	metrics *metrics.Metrics
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithMode sets the claim import mode.
func WithMode(m ImportMode) Option {
	return func(e *Exchange) {
		if m != "" {
			e.mode = m
		}
	}
}

// WithBlobs lets imports point document paths at local payloads.
func WithBlobs(b *blob.Store) Option {
	return func(e *Exchange) { e.blobs = b }
}

// WithClock sets the source of timestamps for rows that carry none.
func WithClock(c clock.Clock) Option {
	return func(e *Exchange) { e.clock = clock.Or(c) }
}

// WithMetrics sets the counters to record into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchange) { e.metrics = m }
}

// New creates an Exchange.
func New(db *store.Store, opts ...Option) *Exchange {
	e := &Exchange{db: db, mode: ModeDedup, clock: clock.System{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the configured import mode.
func (e *Exchange) Mode() ImportMode {
	return e.mode
}

// Export returns every document and claim row.
func (e *Exchange) Export(ctx context.Context) (Snapshot, error) {
	docs, err := e.db.ListDocuments(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	claims, err := e.db.AllClaims(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if docs == nil {
		docs = []ir.Document{}
	}
	if claims == nil {
		claims = []ir.Claim{}
	}
	logger.FromContext(ctx).Debug("snapshot exported",
		zap.Int("documents", len(docs)),
		zap.Int("claims", len(claims)),
	)
	return Snapshot{Documents: docs, Claims: claims}, nil
}

// Import writes snap. The whole snapshot is checked first; an invalid row
// rejects the import before any write. Rows are then written one at a
// time without a surrounding transaction.
func (e *Exchange) Import(ctx context.Context, snap Snapshot) (ImportResult, error) {
	if err := validateSnapshot(snap); err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{ClaimIDRemap: map[int64]int64{}}
	now := ir.Stamp(e.clock.Now())

	for _, doc := range snap.Documents {
		if err := e.importDocument(ctx, doc, now); err != nil {
			return res, err
		}
		res.Documents++
	}
	for _, c := range snap.Claims {
		if err := e.importClaim(ctx, c, now, &res); err != nil {
			return res, err
		}
	}

	logger.FromContext(ctx).Info("snapshot imported",
		zap.String("mode", string(e.mode)),
		zap.Int("documents", res.Documents),
		zap.Int("claims", res.Claims),
		zap.Int("deduplicated", res.Deduplicated),
		zap.Int("remapped", len(res.ClaimIDRemap)),
	)
	e.metrics.Imported("documents", res.Documents)
	e.metrics.Imported("claims", res.Claims)
	return res, nil
}

func (e *Exchange) importDocument(ctx context.Context, doc ir.Document, now time.Time) error {
	if doc.SHA256 == "" {
		doc.SHA256 = doc.CID
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = now
	}
	if e.blobs != nil {
		if path, err := e.blobs.Path(doc.CID); err == nil {
			doc.Path = path
		}
	}
	// The payload text is not part of a snapshot, so only title and
	// description stay searchable.
	return e.db.UpsertDocument(ctx, doc, "")
}

func (e *Exchange) importClaim(ctx context.Context, c ir.Claim, now time.Time, res *ImportResult) error {
	c.ClaimID = ir.ClaimID(c.Text)
	if c.TS.IsZero() {
		c.TS = now
	}
	incoming := c.ID

	if e.mode == ModeDedup {
		existing, err := e.db.GetClaimByDigest(ctx, c.ClaimID)
		switch {
		case err == nil:
			res.Deduplicated++
			if incoming > 0 && incoming != existing.ID {
				res.ClaimIDRemap[incoming] = existing.ID
			}
			return nil
		case !ir.IsNotFound(err):
			return err
		}
	}

	if incoming > 0 {
		taken, err := e.db.ClaimIDTaken(ctx, incoming)
		if err != nil {
			return err
		}
		if taken {
			c.ID = 0
		}
	}
	id, err := e.db.InsertClaim(ctx, c)
	if err != nil {
		return err
	}
	if incoming > 0 && id != incoming {
		res.ClaimIDRemap[incoming] = id
	}
	res.Claims++
	return nil
}

func validateSnapshot(snap Snapshot) error {
	for i, doc := range snap.Documents {
		if !ir.ValidCID(doc.CID) {
			return ir.Invalid("documents[%d]: malformed cid %q", i, doc.CID)
		}
	}
	for i, c := range snap.Claims {
		if strings.TrimSpace(c.Text) == "" {
			return ir.Invalid("claims[%d]: claim text is required", i)
		}
		if c.ID < 0 {
			return ir.Invalid("claims[%d]: negative id %d", i, c.ID)
		}
		switch c.Status {
		case "", ir.StatusPending, ir.StatusVerified, ir.StatusContested, ir.StatusRejected:
		default:
			return ir.Invalid("claims[%d]: unknown status %q", i, c.Status)
		}
	}
	return nil
}
