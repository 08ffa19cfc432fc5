package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/roach88/mnemosyne/internal/ir"
)

// DefaultSearchLimit is used when a caller passes a non-positive limit.
const DefaultSearchLimit = 10

const documentColumns = `cid, sha256, title, description, license, content_type, path, ingested_at`

// UpsertDocument writes the metadata row for doc, then replaces its
// full-text shadow row with text. Re-upserting a cid overwrites metadata.
//
// The two writes are separate statements. If the second fails the metadata
// row stays and the error is returned.
func (s *Store) UpsertDocument(ctx context.Context, doc ir.Document, text string) error {
	if !ir.ValidCID(doc.CID) {
		return ir.Invalid("malformed cid %q", doc.CID)
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = ir.ContentBinary
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
		(cid, sha256, title, description, license, content_type, path, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET
			sha256 = excluded.sha256,
			title = excluded.title,
			description = excluded.description,
			license = excluded.license,
			content_type = excluded.content_type,
			path = excluded.path,
			ingested_at = excluded.ingested_at
	`,
		doc.CID,
		doc.SHA256,
		nullString(doc.Title),
		nullString(doc.Description),
		nullString(doc.License),
		string(contentType),
		doc.Path,
		ir.FormatTime(doc.IngestedAt),
	)
	if err != nil {
		return ir.IOFailure("upsert document", doc.CID, err)
	}

	if err := s.reindex(ctx, doc, text); err != nil {
		return ir.IOFailure("reindex document", doc.CID, err)
	}
	return nil
}

func (s *Store) reindex(ctx context.Context, doc ir.Document, text string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents_fts WHERE cid = ?`, doc.CID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents_fts (cid, title, description, text)
		VALUES (?, ?, ?, ?)
	`, doc.CID, doc.Title, doc.Description, text)
	return err
}

// GetDocument returns the metadata row for cid.
func (s *Store) GetDocument(ctx context.Context, cid string) (ir.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE cid = ?`, cid)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Document{}, ir.NotFound("document", cid)
	}
	if err != nil {
		return ir.Document{}, err
	}
	return doc, nil
}

// ListDocuments returns every document ordered by cid.
func (s *Store) ListDocuments(ctx context.Context) ([]ir.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY cid ASC`)
	if err != nil {
		return nil, ir.IOFailure("list documents", "", err)
	}
	defer rows.Close()

	docs := []ir.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.IOFailure("list documents", "", err)
	}
	return docs, nil
}

// CountDocuments returns the number of document rows.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, ir.IOFailure("count documents", "", err)
	}
	return n, nil
}

// SearchDocuments runs query as an FTS4 MATCH over title, description and
// text. Hits come back in index order with a highlighted snippet and a
// constant score of 1.0. No match yields an empty slice.
//
// An empty query, or one SQLite rejects as a MATCH expression (an
// unbalanced quote, a dangling AND, a bare NOT), is a validation error
// rather than an I/O error.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]ir.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ir.Invalid("empty search query")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.cid, d.title,
			snippet(documents_fts, '<b>', '</b>', '…', -1, 10)
		FROM documents_fts
		CROSS JOIN documents d ON d.cid = documents_fts.cid
		WHERE documents_fts MATCH ?
		ORDER BY documents_fts.docid ASC
		LIMIT ?
	`, query, limit)
	if err != nil {
		if isMatchSyntaxError(err) {
			return nil, ir.Invalid("invalid search query %q: %v", query, err)
		}
		return nil, ir.IOFailure("search documents", query, err)
	}
	defer rows.Close()

	hits := []ir.Hit{}
	for rows.Next() {
		var (
			hit     ir.Hit
			title   sql.NullString
			snippet sql.NullString
		)
		if err := rows.Scan(&hit.CID, &title, &snippet); err != nil {
			return nil, ir.IOFailure("scan search hit", query, err)
		}
		hit.Title = title.String
		hit.Snippet = snippet.String
		hit.Score = 1.0
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		if isMatchSyntaxError(err) {
			return nil, ir.Invalid("invalid search query %q: %v", query, err)
		}
		return nil, ir.IOFailure("search documents", query, err)
	}
	return hits, nil
}

// isMatchSyntaxError reports whether err is SQLite rejecting a MATCH
// expression rather than an I/O problem.
func isMatchSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "malformed MATCH expression") ||
		strings.Contains(msg, "fts4: syntax error") ||
		strings.Contains(msg, "unable to use function MATCH")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (ir.Document, error) {
	var (
		doc         ir.Document
		title       sql.NullString
		description sql.NullString
		license     sql.NullString
		contentType string
		ingestedAt  string
	)
	err := row.Scan(&doc.CID, &doc.SHA256, &title, &description, &license, &contentType, &doc.Path, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Document{}, err
	}
	if err != nil {
		return ir.Document{}, ir.IOFailure("scan document", "", err)
	}
	doc.Title = title.String
	doc.Description = description.String
	doc.License = license.String
	doc.ContentType = ir.ContentType(contentType)
	doc.IngestedAt, err = ir.ParseTime(ingestedAt)
	if err != nil {
		return ir.Document{}, ir.Corrupt(doc.CID, err)
	}
	return doc, nil
}
