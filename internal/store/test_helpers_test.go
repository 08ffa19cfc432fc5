package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/mnemosyne/internal/ir"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument builds a document for payload with minimal fields set.
func createTestDocument(payload, title string) ir.Document {
	cid := ir.ContentID([]byte(payload))
	return ir.Document{
		CID:         cid,
		SHA256:      cid,
		Title:       title,
		ContentType: ir.ContentText,
		Path:        "/blobs/" + cid + ".txt",
		IngestedAt:  testTime,
	}
}

// createTestClaim builds a pending claim for text.
func createTestClaim(text string, sources ...string) ir.Claim {
	if sources == nil {
		sources = []string{}
	}
	return ir.Claim{
		ClaimID: ir.ClaimID(text),
		Text:    text,
		Sources: sources,
		TS:      testTime,
	}
}
