package ledger

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/roach88/mnemosyne/internal/ir"
)

// Decode converts a record into T through its JSON form.
func Decode[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, ir.Corrupt("record", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, ir.Corrupt("record", err)
	}
	return out, nil
}

// ScanAs yields the records of stream decoded into T.
func ScanAs[T any](ctx context.Context, l *Ledger, stream ir.Stream) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for rec, err := range l.Scan(ctx, stream) {
			var v T
			if err == nil {
				v, err = Decode[T](rec)
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// ScanEntries yields the raw or verified stream as ledger entries.
func (l *Ledger) ScanEntries(ctx context.Context, stream ir.Stream) iter.Seq2[ir.LedgerEntry, error] {
	return ScanAs[ir.LedgerEntry](ctx, l, stream)
}

// ScanClaims yields the claims stream.
func (l *Ledger) ScanClaims(ctx context.Context) iter.Seq2[ir.Claim, error] {
	return ScanAs[ir.Claim](ctx, l, ir.StreamClaims)
}

// ScanVotes yields the votes stream.
func (l *Ledger) ScanVotes(ctx context.Context) iter.Seq2[ir.Vote, error] {
	return ScanAs[ir.Vote](ctx, l, ir.StreamVotes)
}
