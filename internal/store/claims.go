package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/mnemosyne/internal/ir"
)

// DefaultMethod is recorded for claims that do not name a review method.
const DefaultMethod = "peer_review"

const claimColumns = `id, claim_id, text, cid, sources, method, status, promoted, promoted_at, ts`

// InsertClaim writes a claim row and returns its id. A positive c.ID is
// used as the row id; otherwise SQLite assigns one. Empty status and
// method fall back to pending and peer_review.
func (s *Store) InsertClaim(ctx context.Context, c ir.Claim) (int64, error) {
	if c.Text == "" {
		return 0, ir.Invalid("claim text is required")
	}
	claimID := c.ClaimID
	if claimID == "" {
		claimID = ir.ClaimID(c.Text)
	}
	status := c.Status
	if status == "" {
		status = ir.StatusPending
	}
	method := c.Method
	if method == "" {
		method = DefaultMethod
	}
	sources, err := marshalSources(c.Sources)
	if err != nil {
		return 0, err
	}

	var id any
	if c.ID > 0 {
		id = c.ID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, claim_id, text, cid, sources, method, status, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, claimID, c.Text, nullString(c.CID), sources, method, string(status), ir.FormatTime(c.TS))
	if err != nil {
		return 0, ir.IOFailure("insert claim", claimID, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, ir.IOFailure("insert claim", claimID, err)
	}
	return newID, nil
}

// ClaimIDTaken reports whether a row with the given integer id exists.
func (s *Store) ClaimIDTaken(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ir.IOFailure("check claim id", strconv.FormatInt(id, 10), err)
	}
	return true, nil
}

// GetClaim returns the claim row with the given integer id.
func (s *Store) GetClaim(ctx context.Context, id int64) (ir.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Claim{}, ir.NotFound("claim", strconv.FormatInt(id, 10))
	}
	return c, err
}

// GetClaimByDigest returns the oldest claim row carrying claimID.
func (s *Store) GetClaimByDigest(ctx context.Context, claimID string) (ir.Claim, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE claim_id = ?
		ORDER BY id ASC
		LIMIT 1
	`, claimID)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Claim{}, ir.NotFound("claim", claimID)
	}
	return c, err
}

// ResolveClaim accepts either a text digest ("clm_...") or a decimal row id.
func (s *Store) ResolveClaim(ctx context.Context, ref string) (ir.Claim, error) {
	if ir.ValidClaimID(ref) {
		return s.GetClaimByDigest(ctx, ref)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return ir.Claim{}, ir.NotFound("claim", ref)
	}
	return s.GetClaim(ctx, id)
}

// ListClaims returns claims newest first. A non-positive limit returns all.
func (s *Store) ListClaims(ctx context.Context, limit int) ([]ir.Claim, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY id DESC LIMIT ?`, limit)
}

// AllClaims returns every claim in id order.
func (s *Store) AllClaims(ctx context.Context) ([]ir.Claim, error) {
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY id ASC`)
}

// VerifiedEvidence returns the distinct cids cited by verified claims,
// either as the claim's own cid or as one of its sources.
func (s *Store) VerifiedEvidence(ctx context.Context) ([]string, error) {
	claims, err := s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE status = 'verified' ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	add := func(cid string) {
		if cid != "" && !seen[cid] {
			seen[cid] = true
			out = append(out, cid)
		}
	}
	for _, c := range claims {
		add(c.CID)
		for _, src := range c.Sources {
			add(src)
		}
	}
	return out, nil
}

// CountClaimsByStatus returns the number of claims per status.
func (s *Store) CountClaimsByStatus(ctx context.Context) (map[ir.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM claims GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, ir.IOFailure("count claims", "", err)
	}
	defer rows.Close()

	counts := make(map[ir.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, ir.IOFailure("count claims", "", err)
		}
		counts[ir.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, ir.IOFailure("count claims", "", err)
	}
	return counts, nil
}

// SetClaimStatus overwrites the status of every row carrying claimID.
func (s *Store) SetClaimStatus(ctx context.Context, claimID string, status ir.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE claims SET status = ? WHERE claim_id = ?`, string(status), claimID)
	if err != nil {
		return ir.IOFailure("set claim status", claimID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.IOFailure("set claim status", claimID, err)
	}
	if n == 0 {
		return ir.NotFound("claim", claimID)
	}
	return nil
}

// MarkPromoted claims the promotion marker for claimID and sets its status
// to verified. It returns false when the claim was already promoted.
// Exactly one caller can win for a given claim.
func (s *Store) MarkPromoted(ctx context.Context, claimID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE claims
		SET promoted = 1, promoted_at = ?, status = 'verified'
		WHERE claim_id = ? AND promoted = 0
	`, ir.FormatTime(at), claimID)
	if err != nil {
		return false, ir.IOFailure("mark promoted", claimID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ir.IOFailure("mark promoted", claimID, err)
	}
	return n > 0, nil
}

// ReleasePromotion undoes MarkPromoted, restoring status to prev.
// Used when the promotion record could not be written.
func (s *Store) ReleasePromotion(ctx context.Context, claimID string, prev ir.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE claims
		SET promoted = 0, promoted_at = NULL, status = ?
		WHERE claim_id = ?
	`, string(prev), claimID)
	if err != nil {
		return ir.IOFailure("release promotion", claimID, err)
	}
	return nil
}

func (s *Store) queryClaims(ctx context.Context, query string, args ...any) ([]ir.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ir.IOFailure("query claims", "", err)
	}
	defer rows.Close()

	claims := []ir.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.IOFailure("query claims", "", err)
	}
	return claims, nil
}

func scanClaim(row rowScanner) (ir.Claim, error) {
	var (
		c          ir.Claim
		cid        sql.NullString
		sources    string
		status     string
		promoted   int
		promotedAt sql.NullString
		ts         string
	)
	err := row.Scan(&c.ID, &c.ClaimID, &c.Text, &cid, &sources, &c.Method, &status, &promoted, &promotedAt, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Claim{}, err
	}
	if err != nil {
		return ir.Claim{}, ir.IOFailure("scan claim", "", err)
	}
	c.CID = cid.String
	c.Status = ir.Status(status)
	c.Promoted = promoted != 0

	if err := json.Unmarshal([]byte(sources), &c.Sources); err != nil {
		return ir.Claim{}, ir.Corrupt(c.ClaimID, fmt.Errorf("sources: %w", err))
	}
	if c.Sources == nil {
		c.Sources = []string{}
	}
	if c.TS, err = ir.ParseTime(ts); err != nil {
		return ir.Claim{}, ir.Corrupt(c.ClaimID, err)
	}
	if promotedAt.Valid {
		if c.PromotedAt, err = ir.ParseTime(promotedAt.String); err != nil {
			return ir.Claim{}, ir.Corrupt(c.ClaimID, err)
		}
	}
	return c, nil
}

func marshalSources(sources []string) (string, error) {
	if sources == nil {
		sources = []string{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return "", ir.Invalid("encode sources: %v", err)
	}
	return string(data), nil
}
