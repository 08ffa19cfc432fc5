// Package ingest turns uploads into stored, indexed and audited documents.
//
// Ingest runs three writes in a fixed order: the blob, then the document
// row with its search shadow, then the INGEST record in the raw ledger.
// There is no rollback. A failure part way leaves the earlier writes in
// place; an orphaned blob is harmless because it is addressed by content.
package ingest

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/blob"
	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/logger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
)

// DefaultLicense is recorded when an upload names no license.
const DefaultLicense = "CC-BY-SA-4.0"

// Upload is one document submission.
type Upload struct {
	Filename    string
	Data        []byte
	Title       string
	Description string
	License     string
}

// Service ingests and reads back documents.
type Service struct {
	blobs      *blob.Store
	db         *store.Store
	ledger     *ledger.Ledger
	classifier Classifier
	extractor  Extractor
	clock      clock.Clock
	metrics    *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClassifier replaces the extension classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithExtractor replaces the text extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = clock.Or(c) }
}

// WithMetrics sets the counters to record into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(blobs *blob.Store, db *store.Store, l *ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		blobs:      blobs,
		db:         db,
		ledger:     l,
		classifier: DefaultClassifier,
		extractor:  TextExtractor{},
		clock:      clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores, indexes and records u. Re-ingesting identical bytes
// yields the same cid and overwrites the metadata.
func (s *Service) Ingest(ctx context.Context, u Upload) (ir.Document, error) {
	contentType := s.classifier.Classify(u.Filename)
	text, extra := s.extractor.Extract(u.Data, contentType)

	cid, err := s.blobs.Put(ctx, u.Data, u.Filename)
	if err != nil {
		return ir.Document{}, err
	}
	path, err := s.blobs.Path(cid)
	if err != nil {
		return ir.Document{}, err
	}

	license := u.License
	if license == "" {
		license = DefaultLicense
	}
	doc := ir.Document{
		CID:         cid,
		SHA256:      cid,
		Title:       u.Title,
		Description: u.Description,
		License:     license,
		ContentType: contentType,
		Path:        path,
		IngestedAt:  ir.Stamp(s.clock.Now()),
	}
	if err := s.db.UpsertDocument(ctx, doc, text); err != nil {
		return ir.Document{}, err
	}

	meta := ir.Object{}
	maps.Copy(meta, extra)
	meta["sha256"] = ir.String(doc.SHA256)
	meta["license"] = ir.String(license)
	meta["content_type"] = ir.String(contentType)
	meta["path"] = ir.String(path)
	entry := ir.LedgerEntry{
		Kind:  ir.KindIngest,
		CID:   cid,
		Title: u.Title,
		Meta:  meta,
		TS:    doc.IngestedAt,
	}
	if err := s.ledger.Append(ctx, ir.StreamRaw, entry.Record()); err != nil {
		return ir.Document{}, err
	}

	logger.FromContext(ctx).Debug("document ingested",
		zap.String("cid", cid),
		zap.String("content_type", string(contentType)),
		zap.Int("bytes", len(u.Data)),
	)
	s.metrics.Ingested(string(contentType))
	return doc, nil
}

// Document returns the metadata row for cid.
func (s *Service) Document(ctx context.Context, cid string) (ir.Document, error) {
	return s.db.GetDocument(ctx, cid)
}

// Fetch returns the payload stored under cid.
func (s *Service) Fetch(ctx context.Context, cid string) ([]byte, error) {
	return s.blobs.Get(ctx, cid)
}

// Search runs a full-text search over the index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]ir.Hit, error) {
	hits, err := s.db.SearchDocuments(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.metrics.Searched(len(hits))
	return hits, nil
}

// Provenance returns the first ledger record mentioning cid, looking in
// the raw stream and then the verified stream. Both are linear scans.
func (s *Service) Provenance(ctx context.Context, cid string) (ledger.Record, ir.Stream, error) {
	for _, stream := range []ir.Stream{ir.StreamRaw, ir.StreamVerified} {
		rec, ok, err := s.ledger.FindByCID(ctx, stream, cid)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return rec, stream, nil
		}
	}
	return nil, "", ir.NotFound("ledger record", cid)
}
