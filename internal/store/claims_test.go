package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mnemosyne/internal/ir"
)

func TestInsertClaim_Defaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.InsertClaim(ctx, createTestClaim("Water boils at 100C", "doc1"))
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetClaim(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.ClaimID("Water boils at 100C"), got.ClaimID)
	assert.Equal(t, ir.StatusPending, got.Status)
	assert.Equal(t, DefaultMethod, got.Method)
	assert.Equal(t, []string{"doc1"}, got.Sources)
	assert.False(t, got.Promoted)
	assert.True(t, got.PromotedAt.IsZero())
}

func TestInsertClaim_DerivesDigest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.InsertClaim(ctx, ir.Claim{Text: "no digest given", TS: testTime})
	require.NoError(t, err)

	got, err := s.GetClaim(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.ClaimID("no digest given"), got.ClaimID)
	assert.Equal(t, []string{}, got.Sources)
}

func TestInsertClaim_ExplicitID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestClaim("explicit")
	c.ID = 5
	id, err := s.InsertClaim(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	taken, err := s.ClaimIDTaken(ctx, 5)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.ClaimIDTaken(ctx, 6)
	require.NoError(t, err)
	assert.False(t, taken)

	// Inserting the same id again is an error, not a silent overwrite.
	_, err = s.InsertClaim(ctx, c)
	assert.True(t, ir.IsIO(err))
}

func TestInsertClaim_RequiresText(t *testing.T) {
	s := createTestStore(t)
	_, err := s.InsertClaim(context.Background(), ir.Claim{})
	assert.True(t, ir.IsValidation(err))
}

func TestResolveClaim(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.InsertClaim(ctx, createTestClaim("resolve me"))
	require.NoError(t, err)

	byDigest, err := s.ResolveClaim(ctx, ir.ClaimID("resolve me"))
	require.NoError(t, err)
	assert.Equal(t, id, byDigest.ID)

	byID, err := s.ResolveClaim(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, byDigest.ClaimID, byID.ClaimID)

	for _, ref := range []string{"clm_0000000000000000", "999", "garbage"} {
		_, err := s.ResolveClaim(ctx, ref)
		assert.True(t, ir.IsNotFound(err), ref)
	}
}

func TestListClaims_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		_, err := s.InsertClaim(ctx, createTestClaim(text))
		require.NoError(t, err)
	}

	claims, err := s.ListClaims(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "third", claims[0].Text)
	assert.Equal(t, "second", claims[1].Text)

	all, err := s.ListClaims(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ordered, err := s.AllClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", ordered[0].Text)
}

func TestSetClaimStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestClaim("decide me")
	_, err := s.InsertClaim(ctx, c)
	require.NoError(t, err)

	require.NoError(t, s.SetClaimStatus(ctx, c.ClaimID, ir.StatusContested))
	got, err := s.GetClaimByDigest(ctx, c.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusContested, got.Status)

	err = s.SetClaimStatus(ctx, "clm_ffffffffffffffff", ir.StatusRejected)
	assert.True(t, ir.IsNotFound(err))
}

func TestMarkPromoted_AtMostOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestClaim("promote me")
	_, err := s.InsertClaim(ctx, c)
	require.NoError(t, err)

	won, err := s.MarkPromoted(ctx, c.ClaimID, testTime)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.MarkPromoted(ctx, c.ClaimID, testTime)
	require.NoError(t, err)
	assert.False(t, won, "second promotion must lose")

	got, err := s.GetClaimByDigest(ctx, c.ClaimID)
	require.NoError(t, err)
	assert.True(t, got.Promoted)
	assert.Equal(t, ir.StatusVerified, got.Status)
	assert.True(t, testTime.Equal(got.PromotedAt))
}

func TestReleasePromotion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestClaim("release me")
	_, err := s.InsertClaim(ctx, c)
	require.NoError(t, err)

	_, err = s.MarkPromoted(ctx, c.ClaimID, testTime)
	require.NoError(t, err)
	require.NoError(t, s.ReleasePromotion(ctx, c.ClaimID, ir.StatusPending))

	got, err := s.GetClaimByDigest(ctx, c.ClaimID)
	require.NoError(t, err)
	assert.False(t, got.Promoted)
	assert.Equal(t, ir.StatusPending, got.Status)

	won, err := s.MarkPromoted(ctx, c.ClaimID, testTime)
	require.NoError(t, err)
	assert.True(t, won, "released marker can be taken again")
}

func TestVerifiedEvidence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	verified := createTestClaim("verified one", "src1", "src2")
	verified.CID = "own"
	verified.Status = ir.StatusVerified
	_, err := s.InsertClaim(ctx, verified)
	require.NoError(t, err)

	pending := createTestClaim("pending one", "src3")
	_, err = s.InsertClaim(ctx, pending)
	require.NoError(t, err)

	again := createTestClaim("verified two", "src2")
	again.Status = ir.StatusVerified
	_, err = s.InsertClaim(ctx, again)
	require.NoError(t, err)

	cids, err := s.VerifiedEvidence(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"own", "src1", "src2"}, cids)
}

func TestCountClaimsByStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := s.InsertClaim(ctx, createTestClaim(text))
		require.NoError(t, err)
	}
	require.NoError(t, s.SetClaimStatus(ctx, ir.ClaimID("a"), ir.StatusRejected))

	counts, err := s.CountClaimsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[ir.Status]int{ir.StatusPending: 2, ir.StatusRejected: 1}, counts)
}
