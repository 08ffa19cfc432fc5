package seed

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mnemosyne/internal/blob"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/metrics"
	"github.com/roach88/mnemosyne/internal/store"
	tu "github.com/roach88/mnemosyne/internal/testutil"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestExchange(t *testing.T, opts ...Option) (*Exchange, *store.Store) {
	t.Helper()
	db := createTestStore(t)
	base := []Option{WithClock(tu.NewDeterministicClock())}
	return New(db, append(base, opts...)...), db
}

func testDocument(payload, title string) ir.Document {
	cid := ir.ContentID([]byte(payload))
	return ir.Document{
		CID:         cid,
		SHA256:      cid,
		Title:       title,
		License:     "CC-BY-SA-4.0",
		ContentType: ir.ContentText,
		Path:        "/blobs/" + cid + ".txt",
		IngestedAt:  testTime,
	}
}

func testClaim(id int64, text string, sources ...string) ir.Claim {
	if sources == nil {
		sources = []string{}
	}
	return ir.Claim{ID: id, Text: text, Sources: sources, TS: testTime}
}

func seedSource(t *testing.T, db *store.Store) {
	t.Helper()
	ctx := context.Background()
	hello := testDocument("hello", "greeting")
	require.NoError(t, db.UpsertDocument(ctx, hello, "hello"))
	c := testClaim(0, "Water boils at 100C", "doc1")
	c.CID = hello.CID
	_, err := db.InsertClaim(ctx, c)
	require.NoError(t, err)
}

func countClaims(t *testing.T, db *store.Store) int {
	t.Helper()
	all, err := db.AllClaims(context.Background())
	require.NoError(t, err)
	return len(all)
}

func TestExport_Golden(t *testing.T) {
	ex, db := createTestExchange(t)
	seedSource(t, db)

	snap, err := ex.Export(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap, FormatJSON))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "export", buf.Bytes())
}

func TestExport_EmptyStore(t *testing.T) {
	ex, _ := createTestExchange(t)

	snap, err := ex.Export(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Documents)
	assert.NotNil(t, snap.Claims)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap, FormatJSON))
	assert.JSONEq(t, `{"documents":[],"claims":[]}`, buf.String())
}

func TestImport_RoundTripIntoFreshSystem(t *testing.T) {
	ctx := context.Background()
	src, srcDB := createTestExchange(t)
	seedSource(t, srcDB)
	_, err := srcDB.InsertClaim(ctx, testClaim(0, "Ice melts at 0C"))
	require.NoError(t, err)

	snap, err := src.Export(ctx)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, snap, FormatJSON))
	decoded, err := Decode(buf.Bytes(), FormatJSON)
	require.NoError(t, err)

	m := metrics.New()
	dst, _ := createTestExchange(t, WithMetrics(m))
	res, err := dst.Import(ctx, decoded)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 2, res.Claims)
	assert.Empty(t, res.ClaimIDRemap)

	again, err := dst.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SeedImported.WithLabelValues("claims")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeedImported.WithLabelValues("documents")))
}

func TestImport_OccupiedIDIsRemapped(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)
	_, err := db.InsertClaim(ctx, testClaim(5, "already here"))
	require.NoError(t, err)
	_, err = db.InsertClaim(ctx, testClaim(8, "also here"))
	require.NoError(t, err)

	res, err := ex.Import(ctx, Snapshot{Claims: []ir.Claim{testClaim(5, "a newcomer")}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Claims)
	assert.Equal(t, map[int64]int64{5: 9}, res.ClaimIDRemap)

	got, err := db.GetClaim(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "a newcomer", got.Text)
	assert.Equal(t, ir.ClaimID("a newcomer"), got.ClaimID)
}

func TestImport_FreeIDIsPreserved(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)

	res, err := ex.Import(ctx, Snapshot{Claims: []ir.Claim{testClaim(42, "the answer")}})
	require.NoError(t, err)
	assert.Empty(t, res.ClaimIDRemap)

	got, err := db.GetClaim(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "the answer", got.Text)
	assert.Equal(t, ir.StatusPending, got.Status)
	assert.Equal(t, store.DefaultMethod, got.Method)
}

func TestImport_ClaimWithoutIDGetsFreshOne(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)

	c := testClaim(0, "no id")
	c.TS = time.Time{}
	res, err := ex.Import(ctx, Snapshot{Claims: []ir.Claim{c}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claims)
	assert.Empty(t, res.ClaimIDRemap)

	got, err := db.GetClaim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tu.Epoch, got.TS, "missing timestamps are stamped at import")
}

func TestImport_DedupReimportIsNoop(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)
	seedSource(t, db)

	snap, err := ex.Export(ctx)
	require.NoError(t, err)

	res, err := ex.Import(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 0, res.Claims)
	assert.Equal(t, 1, res.Deduplicated)
	assert.Empty(t, res.ClaimIDRemap)
	assert.Equal(t, 1, countClaims(t, db))

	n, err := db.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImport_DedupMapsToExistingRow(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)
	_, err := db.InsertClaim(ctx, testClaim(0, "shared fact"))
	require.NoError(t, err)

	res, err := ex.Import(ctx, Snapshot{Claims: []ir.Claim{testClaim(7, "shared fact")}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claims)
	assert.Equal(t, map[int64]int64{7: 1}, res.ClaimIDRemap)
	assert.Equal(t, 1, countClaims(t, db))
}

func TestImport_AppendModeDuplicates(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t, WithMode(ModeAppend))
	seedSource(t, db)

	snap, err := ex.Export(ctx)
	require.NoError(t, err)

	res, err := ex.Import(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claims)
	assert.Equal(t, map[int64]int64{1: 2}, res.ClaimIDRemap)
	assert.Equal(t, 2, countClaims(t, db))

	first, err := db.GetClaimByDigest(ctx, ir.ClaimID("Water boils at 100C"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID, "the digest resolves to the oldest row")
}

func TestImport_RejectsBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)

	snap := Snapshot{
		Documents: []ir.Document{testDocument("hello", "greeting")},
		Claims:    []ir.Claim{testClaim(0, "fine"), testClaim(0, "   ")},
	}
	_, err := ex.Import(ctx, snap)
	require.Error(t, err)
	assert.True(t, ir.IsValidation(err))

	n, err := db.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, countClaims(t, db))

	_, err = ex.Import(ctx, Snapshot{Documents: []ir.Document{{CID: "nope"}}})
	assert.True(t, ir.IsValidation(err))

	bad := testClaim(0, "bad status")
	bad.Status = "maybe"
	_, err = ex.Import(ctx, Snapshot{Claims: []ir.Claim{bad}})
	assert.True(t, ir.IsValidation(err))
}

func TestImport_DocumentsAreReindexedWithoutText(t *testing.T) {
	ctx := context.Background()
	ex, db := createTestExchange(t)

	_, err := ex.Import(ctx, Snapshot{Documents: []ir.Document{testDocument("body words", "a title")}})
	require.NoError(t, err)

	hits, err := db.SearchDocuments(ctx, "title", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = db.SearchDocuments(ctx, "body", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestImport_DocumentPathFromLocalBlobs(t *testing.T) {
	ctx := context.Background()
	blobs, err := blob.Open(afero.NewMemMapFs(), "/local", blob.Options{})
	require.NoError(t, err)
	cid, err := blobs.Put(ctx, []byte("hello"), "hello.md")
	require.NoError(t, err)

	ex, db := createTestExchange(t, WithBlobs(blobs))
	doc := testDocument("hello", "greeting")
	doc.SHA256 = ""
	doc.IngestedAt = time.Time{}
	missing := testDocument("world", "elsewhere")

	_, err = ex.Import(ctx, Snapshot{Documents: []ir.Document{doc, missing}})
	require.NoError(t, err)

	got, err := db.GetDocument(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/local", cid+".md"), got.Path)
	assert.Equal(t, cid, got.SHA256)
	assert.Equal(t, tu.Epoch, got.IngestedAt)

	other, err := db.GetDocument(ctx, missing.CID)
	require.NoError(t, err)
	assert.Equal(t, missing.Path, other.Path, "path is kept when no local payload exists")
}

func TestParseImportMode(t *testing.T) {
	m, err := ParseImportMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDedup, m)

	m, err = ParseImportMode("append")
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, m)

	_, err = ParseImportMode("merge")
	assert.True(t, ir.IsValidation(err))
}
