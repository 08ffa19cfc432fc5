// Package claims records claims and votes.
//
// The claims and votes ledgers are the history. The relational claims
// table is the queryable projection of the claims ledger. Tallies are
// never stored: every Tally call replays the votes ledger, so a vote that
// was just acknowledged is always counted.
package claims

import (
	"context"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/logger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
)

// AnonymousVoter is recorded when a vote names no voter.
const AnonymousVoter = "anon"

// VotePolicy decides which votes count toward a tally.
type VotePolicy string

const (
	// PolicyPermissive counts every vote, including repeats by one voter.
	PolicyPermissive VotePolicy = "permissive"

	// PolicyLatestPerVoter counts only each voter's most recent vote.
	// Earlier votes stay in the ledger.
	PolicyLatestPerVoter VotePolicy = "latest-per-voter"
)

// ParseVotePolicy validates a policy name. Empty means permissive.
func ParseVotePolicy(s string) (VotePolicy, error) {
	switch p := VotePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPermissive, nil
	case PolicyPermissive, PolicyLatestPerVoter:
		return p, nil
	default:
		return "", ir.Invalid("unknown vote policy %q", s)
	}
}

// Store is the claim and vote record.
type Store struct {
	ledger  *ledger.Ledger
	db      *store.Store
	clock   clock.Clock
	policy  VotePolicy
	metrics *metrics.Metrics

	// proposing holds one *sync.Mutex per claim id so that the
	// lookup-append-insert sequence of Propose runs once per text.
	proposing sync.Map
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = clock.Or(c) }
}

// WithPolicy sets the tally policy.
func WithPolicy(p VotePolicy) Option {
	return func(s *Store) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithMetrics sets the counters to record into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over the given ledger and database.
func New(l *ledger.Ledger, db *store.Store, opts ...Option) *Store {
	s := &Store{
		ledger: l,
		db:     db,
		clock:  clock.System{},
		policy: PolicyPermissive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active tally policy.
func (s *Store) Policy() VotePolicy {
	return s.policy
}

// Propose records a claim for text and returns it.
//
// The claim id is derived from text. If a claim with that id already
// exists it is returned unchanged with created=false and nothing is
// written. Concurrent proposals of the same text are serialized. Otherwise the claim is appended to the claims ledger and then
// projected into the claims table as pending.
func (s *Store) Propose(ctx context.Context, text, cid string, sources []string) (ir.Claim, bool, error) {
	if strings.TrimSpace(text) == "" {
		return ir.Claim{}, false, ir.Invalid("claim text is required")
	}
	claimID := ir.ClaimID(text)
	log := logger.FromContext(ctx).With(zap.String("claim_id", claimID))

	mu, _ := s.proposing.LoadOrStore(claimID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	existing, err := s.db.GetClaimByDigest(ctx, claimID)
	if err == nil {
		log.Debug("claim already proposed")
		s.metrics.Proposed(false)
		return existing, false, nil
	}
	if !ir.IsNotFound(err) {
		return ir.Claim{}, false, err
	}

	if sources == nil {
		sources = []string{}
	}
	claim := ir.Claim{
		ClaimID: claimID,
		Text:    text,
		CID:     cid,
		Sources: sources,
		Method:  store.DefaultMethod,
		Status:  ir.StatusPending,
		TS:      ir.Stamp(s.clock.Now()),
	}
	if err := s.ledger.Append(ctx, ir.StreamClaims, claim.Record()); err != nil {
		return ir.Claim{}, false, err
	}
	id, err := s.db.InsertClaim(ctx, claim)
	if err != nil {
		return ir.Claim{}, false, err
	}
	claim.ID = id

	log.Debug("claim proposed", zap.Int64("id", id))
	s.metrics.Proposed(true)
	return claim, true, nil
}

// Vote appends a vote. value must be +1 or -1. An empty voter is recorded
// as AnonymousVoter. Vote does not check that the claim exists.
func (s *Store) Vote(ctx context.Context, claimID string, value int, voter string) (ir.Vote, error) {
	if value != 1 && value != -1 {
		return ir.Vote{}, ir.Invalid("vote value must be +1 or -1, got %d", value)
	}
	if strings.TrimSpace(voter) == "" {
		voter = AnonymousVoter
	}
	vote := ir.Vote{
		ClaimID: claimID,
		Value:   value,
		Voter:   voter,
		TS:      ir.Stamp(s.clock.Now()),
	}
	if err := s.ledger.Append(ctx, ir.StreamVotes, vote.Record()); err != nil {
		return ir.Vote{}, err
	}
	logger.FromContext(ctx).Debug("vote recorded",
		zap.String("claim_id", claimID),
		zap.Int("value", value),
		zap.String("voter", voter),
	)
	s.metrics.Voted(value)
	return vote, nil
}

// History returns every vote for claimID in append order.
func (s *Store) History(ctx context.Context, claimID string) ([]ir.Vote, error) {
	votes := []ir.Vote{}
	for v, err := range s.ledger.ScanVotes(ctx) {
		if err != nil {
			return nil, err
		}
		if v.ClaimID == claimID {
			votes = append(votes, v)
		}
	}
	return votes, nil
}

// Tally replays the votes for claimID under the store's policy.
// A positive value counts up; anything else counts down.
func (s *Store) Tally(ctx context.Context, claimID string) (ir.Tally, error) {
	votes, err := s.History(ctx, claimID)
	if err != nil {
		return ir.Tally{}, err
	}
	return TallyVotes(votes, s.policy), nil
}

// TallyVotes computes a tally from votes already in append order.
func TallyVotes(votes []ir.Vote, policy VotePolicy) ir.Tally {
	if policy == PolicyLatestPerVoter {
		latest := make(map[string]int, len(votes))
		for _, v := range votes {
			latest[v.Voter] = v.Value
		}
		votes = votes[:0:0]
		for voter, value := range latest {
			votes = append(votes, ir.Vote{Voter: voter, Value: value})
		}
	}

	var t ir.Tally
	for _, v := range votes {
		if v.Value > 0 {
			t.Up++
		} else {
			t.Down++
		}
	}
	t.Net = t.Up - t.Down
	return t
}

// Voters returns the distinct voters who voted on claimID.
func (s *Store) Voters(ctx context.Context, claimID string) (mapset.Set[string], error) {
	votes, err := s.History(ctx, claimID)
	if err != nil {
		return nil, err
	}
	voters := mapset.NewSet[string]()
	for _, v := range votes {
		voters.Add(v.Voter)
	}
	return voters, nil
}

// Get resolves ref, a claim id digest or an integer row id.
func (s *Store) Get(ctx context.Context, ref string) (ir.Claim, error) {
	return s.db.ResolveClaim(ctx, ref)
}

// List returns up to limit claims, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]ir.Claim, error) {
	return s.db.ListClaims(ctx, limit)
}
