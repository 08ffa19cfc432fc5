package verify

import (
	"context"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/mnemosyne/internal/ir"
)

// DefaultAskLimit is the number of citations Ask returns by default.
const DefaultAskLimit = 3

// Citation is a search hit annotated with verification state.
type Citation struct {
	CID      string `json:"cid"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Verified bool   `json:"verified"`
}

// Answer is the result of Ask.
type Answer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Ask searches the index and orders the hits so that documents cited as
// evidence by a verified claim come first. Order within each group is the
// search order.
func (e *Engine) Ask(ctx context.Context, query string, limit int) (Answer, error) {
	if limit <= 0 {
		limit = DefaultAskLimit
	}
	hits, err := e.db.SearchDocuments(ctx, query, limit)
	if err != nil {
		return Answer{}, err
	}
	e.metrics.Searched(len(hits))

	evidence, err := e.db.VerifiedEvidence(ctx)
	if err != nil {
		return Answer{}, err
	}
	verified := mapset.NewSet(evidence...)

	citations := make([]Citation, 0, len(hits))
	for _, h := range hits {
		citations = append(citations, citationOf(h, verified.Contains(h.CID)))
	}
	slices.SortStableFunc(citations, func(a, b Citation) int {
		switch {
		case a.Verified == b.Verified:
			return 0
		case a.Verified:
			return -1
		default:
			return 1
		}
	})

	n := 0
	for _, c := range citations {
		if c.Verified {
			n++
		}
	}
	return Answer{
		Answer:    fmt.Sprintf("%d source(s) found, %d backed by verified claims. Verified sources are listed first.", len(citations), n),
		Citations: citations,
	}, nil
}

func citationOf(h ir.Hit, verified bool) Citation {
	return Citation{CID: h.CID, Title: h.Title, Snippet: h.Snippet, Verified: verified}
}
