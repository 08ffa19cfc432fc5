package verify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/claims"
	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/logger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
)

const (
	// DefaultThreshold is the net tally at which a claim is promoted.
	DefaultThreshold = 3

	// TitleLimit is the maximum number of runes of claim text kept as the
	// title of a promotion record.
	TitleLimit = 80
)

// Engine runs the claim lifecycle. It owns no storage.
type Engine struct {
	claims    *claims.Store
	db        *store.Store
	ledger    *ledger.Ledger
	clock     clock.Clock
	metrics   *metrics.Metrics
	threshold int
	synonyms  Synonyms
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the promotion threshold. Non-positive values are ignored.
func WithThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threshold = n
		}
	}
}

// WithSynonyms replaces the decision vocabulary.
func WithSynonyms(s Synonyms) Option {
	return func(e *Engine) {
		if len(s) > 0 {
			e.synonyms = s
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = clock.Or(c) }
}

// WithMetrics sets the counters to record into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(c *claims.Store, db *store.Store, l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		claims:    c,
		db:        db,
		ledger:    l,
		clock:     clock.System{},
		threshold: DefaultThreshold,
		synonyms:  DefaultSynonyms,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the promotion threshold.
func (e *Engine) Threshold() int {
	return e.threshold
}

// VoteRequest is a vote as submitted by a caller.
type VoteRequest struct {
	ClaimRef string // claim id digest or integer row id
	Input    VoteInput
	Voter    string
}

// VoteResult reports what a vote did.
type VoteResult struct {
	Vote     ir.Vote  `json:"vote"`
	Tally    ir.Tally `json:"tally"`
	Promoted bool     `json:"promoted"`
	Claim    ir.Claim `json:"claim"`
}

// CastVote normalizes and records a vote, then promotes the claim to the
// verified ledger if its net tally reached the threshold.
//
// Validation and the claim lookup happen before any write. Promotion
// happens at most once per claim: Promoted is true only for the vote that
// performed it.
func (e *Engine) CastVote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	value, err := e.synonyms.Normalize(req.Input)
	if err != nil {
		return VoteResult{}, err
	}
	claim, err := e.db.ResolveClaim(ctx, req.ClaimRef)
	if err != nil {
		return VoteResult{}, err
	}

	vote, err := e.claims.Vote(ctx, claim.ClaimID, value, req.Voter)
	if err != nil {
		return VoteResult{}, err
	}
	tally, err := e.claims.Tally(ctx, claim.ClaimID)
	if err != nil {
		return VoteResult{}, err
	}

	res := VoteResult{Vote: vote, Tally: tally, Claim: claim}
	if tally.Net < e.threshold || claim.Promoted {
		return res, nil
	}

	promoted, err := e.promote(ctx, claim, tally)
	if err != nil {
		return res, err
	}
	res.Promoted = promoted
	if promoted {
		if res.Claim, err = e.db.GetClaim(ctx, claim.ID); err != nil {
			return res, err
		}
	}
	return res, nil
}

// promote takes the promotion marker and writes the verified record.
// If the record cannot be written the marker is released.
func (e *Engine) promote(ctx context.Context, claim ir.Claim, tally ir.Tally) (bool, error) {
	now := ir.Stamp(e.clock.Now())
	won, err := e.db.MarkPromoted(ctx, claim.ClaimID, now)
	if err != nil || !won {
		return false, err
	}

	sources := claim.Sources
	if sources == nil {
		sources = []string{}
	}
	entry := ir.LedgerEntry{
		Kind:  ir.KindVerified,
		CID:   claim.CID,
		Title: truncateRunes(claim.Text, TitleLimit),
		Text:  claim.Text,
		Meta: ir.Object{
			"sources":  ir.Strings(sources),
			"claim_id": ir.String(claim.ClaimID),
		},
		TS: now,
	}
	if err := e.ledger.Append(ctx, ir.StreamVerified, entry.Record()); err != nil {
		if rerr := e.db.ReleasePromotion(ctx, claim.ClaimID, claim.Status); rerr != nil {
			return false, errors.Join(err, rerr)
		}
		return false, err
	}

	logger.FromContext(ctx).Info("claim promoted",
		zap.String("claim_id", claim.ClaimID),
		zap.Int("net", tally.Net),
	)
	e.metrics.Promoted()
	return true, nil
}

// SetClaimStatus applies a reviewer decision. The decision becomes the
// claim status outright, and a DECISION entry is appended to the verified
// ledger whatever the outcome.
func (e *Engine) SetClaimStatus(ctx context.Context, ref, reviewer, decision, notes string) (ir.Claim, error) {
	status, err := ir.ParseDecision(decision)
	if err != nil {
		return ir.Claim{}, err
	}
	claim, err := e.db.ResolveClaim(ctx, ref)
	if err != nil {
		return ir.Claim{}, err
	}
	if reviewer == "" {
		reviewer = claims.AnonymousVoter
	}

	if err := e.db.SetClaimStatus(ctx, claim.ClaimID, status); err != nil {
		return ir.Claim{}, err
	}
	entry := ir.LedgerEntry{
		Kind:     ir.KindDecision,
		CID:      claim.CID,
		ClaimID:  claim.ClaimID,
		Decision: status,
		Voter:    reviewer,
		Notes:    notes,
		Meta:     ir.Object{},
		TS:       ir.Stamp(e.clock.Now()),
	}
	if err := e.ledger.Append(ctx, ir.StreamVerified, entry.Record()); err != nil {
		return ir.Claim{}, err
	}

	logger.FromContext(ctx).Info("claim decided",
		zap.String("claim_id", claim.ClaimID),
		zap.String("decision", string(status)),
		zap.String("reviewer", reviewer),
	)
	e.metrics.Decided(string(status))

	return e.db.GetClaim(ctx, claim.ID)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
