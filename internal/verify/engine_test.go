package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mnemosyne/internal/claims"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/ledger"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
	tu "github.com/roach88/mnemosyne/internal/testutil"
)

// flakyFs fails opens of one file while broken is set.
type flakyFs struct {
	afero.Fs
	path   string
	broken *atomic.Bool
}

func (f flakyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.path && f.broken.Load() {
		return nil, errors.New("disk full")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

type fixture struct {
	engine  *Engine
	claims  *claims.Store
	db      *store.Store
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	broken  *atomic.Bool
}

func createTestEngine(t *testing.T, claimOpts ...claims.Option) fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broken := &atomic.Bool{}
	fsys := flakyFs{Fs: afero.NewMemMapFs(), path: filepath.Join("/ledger", "verified.jsonl"), broken: broken}
	l, err := ledger.Open(fsys, "/ledger")
	require.NoError(t, err)

	clock := tu.NewDeterministicClock()
	m := metrics.New()
	cs := claims.New(l, db, append([]claims.Option{claims.WithClock(clock), claims.WithMetrics(m)}, claimOpts...)...)
	e := New(cs, db, l, WithClock(clock), WithMetrics(m))
	return fixture{engine: e, claims: cs, db: db, ledger: l, metrics: m, broken: broken}
}

func verifiedEntries(t *testing.T, l *ledger.Ledger) []ir.LedgerEntry {
	t.Helper()
	var out []ir.LedgerEntry
	for e, err := range l.ScanEntries(context.Background(), ir.StreamVerified) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func upvote(ref string) VoteRequest {
	return VoteRequest{ClaimRef: ref, Input: Numeric(1)}
}

func TestCastVote_PromotesAtThreshold(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "Water boils at 100C", "", []string{"doc1"})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		res, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
		require.NoError(t, err)
		assert.False(t, res.Promoted, "vote %d", i)
	}
	assert.Empty(t, verifiedEntries(t, f.ledger))

	res, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	assert.Equal(t, ir.Tally{Up: 3, Down: 0, Net: 3}, res.Tally)
	assert.Equal(t, ir.StatusVerified, res.Claim.Status)
	assert.True(t, res.Claim.Promoted)

	entries := verifiedEntries(t, f.ledger)
	require.Len(t, entries, 1)
	assert.Equal(t, ir.KindVerified, entries[0].Kind)
	assert.Equal(t, "Water boils at 100C", entries[0].Title)
	assert.Equal(t, "Water boils at 100C", entries[0].Text)
	assert.Equal(t, []string{"doc1"}, ir.StringsOf(entries[0].Meta["sources"]))
	assert.Equal(t, c.ClaimID, entries[0].Meta.Str("claim_id"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Promotions))
}

func TestCastVote_PromotesAtMostOnce(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "once only", "", nil)
	require.NoError(t, err)

	promotions := 0
	for range 6 {
		res, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
		require.NoError(t, err)
		if res.Promoted {
			promotions++
		}
	}
	assert.Equal(t, 1, promotions)
	assert.Len(t, verifiedEntries(t, f.ledger), 1)
}

func TestCastVote_ConcurrentVotesPromoteOnce(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "race", "", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var promoted atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
			if err != nil {
				t.Errorf("CastVote: %v", err)
				return
			}
			if res.Promoted {
				promoted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), promoted.Load())
	assert.Len(t, verifiedEntries(t, f.ledger), 1)
}

func TestCastVote_DownvotesHoldBackPromotion(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "contested fact", "", nil)
	require.NoError(t, err)

	inputs := []VoteInput{Text("approve"), Text("approve"), Text("reject"), Text("yes")}
	for _, in := range inputs {
		res, err := f.engine.CastVote(ctx, VoteRequest{ClaimRef: c.ClaimID, Input: in})
		require.NoError(t, err)
		assert.False(t, res.Promoted)
	}

	res, err := f.engine.CastVote(ctx, VoteRequest{ClaimRef: c.ClaimID, Input: Text("upvote")})
	require.NoError(t, err)
	assert.Equal(t, ir.Tally{Up: 4, Down: 1, Net: 3}, res.Tally)
	assert.True(t, res.Promoted)
}

func TestCastVote_InvalidValueWritesNothing(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "x", "", nil)
	require.NoError(t, err)

	_, err = f.engine.CastVote(ctx, VoteRequest{ClaimRef: c.ClaimID, Input: Numeric(2), Voter: "x"})
	assert.True(t, ir.IsValidation(err))

	tally, err := f.claims.Tally(ctx, c.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, ir.Tally{}, tally)

	n, err := f.ledger.Count(ctx, ir.StreamVotes)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCastVote_UnknownClaim(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	_, err := f.engine.CastVote(ctx, upvote("clm_0000000000000000"))
	assert.True(t, ir.IsNotFound(err))

	n, err := f.ledger.Count(ctx, ir.StreamVotes)
	require.NoError(t, err)
	assert.Zero(t, n, "lookup fails before any write")
}

func TestCastVote_ByRowID(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "by id", "", nil)
	require.NoError(t, err)

	res, err := f.engine.CastVote(ctx, upvote("1"))
	require.NoError(t, err)
	assert.Equal(t, c.ClaimID, res.Vote.ClaimID)
}

func TestCastVote_LedgerFailureReleasesMarker(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "fragile", "", nil)
	require.NoError(t, err)
	for range 2 {
		_, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
		require.NoError(t, err)
	}

	f.broken.Store(true)
	_, err = f.engine.CastVote(ctx, upvote(c.ClaimID))
	require.Error(t, err)
	assert.True(t, ir.IsIO(err))

	row, err := f.db.GetClaimByDigest(ctx, c.ClaimID)
	require.NoError(t, err)
	assert.False(t, row.Promoted, "marker released after failed append")
	assert.Equal(t, ir.StatusPending, row.Status)

	f.broken.Store(false)
	res, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
	require.NoError(t, err)
	assert.True(t, res.Promoted, "a later vote can still promote")
	assert.Len(t, verifiedEntries(t, f.ledger), 1)
}

func TestCastVote_LatestPerVoterPolicy(t *testing.T) {
	f := createTestEngine(t, claims.WithPolicy(claims.PolicyLatestPerVoter))
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "stuffing", "", nil)
	require.NoError(t, err)

	for range 5 {
		res, err := f.engine.CastVote(ctx, VoteRequest{ClaimRef: c.ClaimID, Input: Numeric(1), Voter: "mallory"})
		require.NoError(t, err)
		assert.False(t, res.Promoted)
		assert.Equal(t, 1, res.Tally.Net)
	}
}

func TestCastVote_CustomThreshold(t *testing.T) {
	f := createTestEngine(t)
	e := New(f.claims, f.db, f.ledger, WithThreshold(1))
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "low bar", "", nil)
	require.NoError(t, err)

	res, err := e.CastVote(ctx, upvote(c.ClaimID))
	require.NoError(t, err)
	assert.True(t, res.Promoted)
}

func TestPromotionTitleTruncated(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	long := strings.Repeat("é", 100)
	c, _, err := f.claims.Propose(ctx, long, "cid-1", nil)
	require.NoError(t, err)
	for range 3 {
		_, err := f.engine.CastVote(ctx, upvote(c.ClaimID))
		require.NoError(t, err)
	}

	entries := verifiedEntries(t, f.ledger)
	require.Len(t, entries, 1)
	assert.Equal(t, strings.Repeat("é", TitleLimit), entries[0].Title)
	assert.Equal(t, long, entries[0].Text)
	assert.Equal(t, "cid-1", entries[0].CID)
}

func TestSetClaimStatus(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "reviewed", "", nil)
	require.NoError(t, err)

	got, err := f.engine.SetClaimStatus(ctx, c.ClaimID, "rev1", "Contested", "needs sources")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusContested, got.Status)

	got, err = f.engine.SetClaimStatus(ctx, c.ClaimID, "", "rejected", "")
	require.NoError(t, err)
	assert.Equal(t, ir.StatusRejected, got.Status)

	entries := verifiedEntries(t, f.ledger)
	require.Len(t, entries, 2, "every decision is audited")
	assert.Equal(t, ir.KindDecision, entries[0].Kind)
	assert.Equal(t, ir.StatusContested, entries[0].Decision)
	assert.Equal(t, "rev1", entries[0].Voter)
	assert.Equal(t, "needs sources", entries[0].Notes)
	assert.Equal(t, c.ClaimID, entries[0].ClaimID)
	assert.Equal(t, claims.AnonymousVoter, entries[1].Voter)
}

func TestSetClaimStatus_Validation(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "x", "", nil)
	require.NoError(t, err)

	_, err = f.engine.SetClaimStatus(ctx, c.ClaimID, "rev", "pending", "")
	assert.True(t, ir.IsValidation(err))

	_, err = f.engine.SetClaimStatus(ctx, "clm_0000000000000000", "rev", "verified", "")
	assert.True(t, ir.IsNotFound(err))

	assert.Empty(t, verifiedEntries(t, f.ledger), "nothing written on failure")
}

func TestDecisionThenQuorumShareStatus(t *testing.T) {
	f := createTestEngine(t)
	ctx := context.Background()

	c, _, err := f.claims.Propose(ctx, "both paths", "", nil)
	require.NoError(t, err)

	_, err = f.engine.SetClaimStatus(ctx, c.ClaimID, "rev", "rejected", "")
	require.NoError(t, err)

	var res VoteResult
	for range 3 {
		res, err = f.engine.CastVote(ctx, upvote(c.ClaimID))
		require.NoError(t, err)
	}
	assert.True(t, res.Promoted)
	assert.Equal(t, ir.StatusVerified, res.Claim.Status)
}
