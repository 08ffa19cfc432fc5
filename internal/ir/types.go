package ir

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the textual timestamp format of every persisted record:
// UTC, second precision.
const TimeLayout = "2006-01-02T15:04:05Z"

// Stamp reduces t to a record timestamp: UTC, whole seconds.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return Stamp(t).Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Stream names an append-only ledger.
type Stream string

const (
	StreamRaw      Stream = "raw"
	StreamVerified Stream = "verified"
	StreamClaims   Stream = "claims"
	StreamVotes    Stream = "votes"
)

// Streams lists every ledger stream in a stable order.
var Streams = []Stream{StreamRaw, StreamVerified, StreamClaims, StreamVotes}

// ParseStream validates a stream name.
func ParseStream(s string) (Stream, error) {
	for _, st := range Streams {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Invalid("unknown ledger stream %q", s)
}

// Kind tags a LedgerEntry.
type Kind string

const (
	KindIngest   Kind = "INGEST"
	KindVerified Kind = "VERIFIED"
	KindDecision Kind = "DECISION"
)

// Status is the lifecycle state of a claim.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusContested Status = "contested"
	StatusRejected  Status = "rejected"
)

// ParseDecision validates a reviewer decision. Only terminal statuses are
// decisions; "pending" is not.
func ParseDecision(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusVerified, StatusContested, StatusRejected:
		return st, nil
	default:
		return "", Invalid("invalid decision %q: use verified, contested or rejected", s)
	}
}

// ContentType is the coarse classification of an ingested payload.
type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentPDF    ContentType = "pdf"
	ContentAudio  ContentType = "audio"
	ContentVideo  ContentType = "video"
	ContentBinary ContentType = "binary"
)

// Document is the metadata row of an ingested payload. CID equals the
// SHA-256 hex of the payload.
type Document struct {
	CID         string      `json:"cid" yaml:"cid"`
	SHA256      string      `json:"sha256" yaml:"sha256"`
	Title       string      `json:"title,omitempty" yaml:"title,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	License     string      `json:"license,omitempty" yaml:"license,omitempty"`
	ContentType ContentType `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Path        string      `json:"path,omitempty" yaml:"path,omitempty"`
	IngestedAt  time.Time   `json:"ingested_at" yaml:"ingested_at"`
}

// Hit is a single search result. Score is a match-existence signal, not a
// relevance rank.
type Hit struct {
	CID     string  `json:"cid"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

// Claim is a textual assertion submitted for verification.
//
// ClaimID is the text digest (see ClaimID). ID is the integer row id of the
// relational projection, used by seed exchange.
type Claim struct {
	ID         int64     `json:"id,omitempty" yaml:"id,omitempty"`
	ClaimID    string    `json:"claim_id" yaml:"claim_id"`
	Text       string    `json:"text" yaml:"text"`
	CID        string    `json:"cid,omitempty" yaml:"cid,omitempty"`
	Sources    []string  `json:"sources" yaml:"sources"`
	Method     string    `json:"method,omitempty" yaml:"method,omitempty"`
	Status     Status    `json:"status,omitempty" yaml:"status,omitempty"`
	Promoted   bool      `json:"promoted,omitempty" yaml:"promoted,omitempty"`
	PromotedAt time.Time `json:"promoted_at,omitzero" yaml:"promoted_at,omitempty"`
	TS         time.Time `json:"ts" yaml:"ts"`
}

// Record renders the claim as a claims-ledger line.
func (c Claim) Record() Object {
	obj := Object{
		"claim_id": String(c.ClaimID),
		"text":     String(c.Text),
		"sources":  Strings(c.Sources),
		"ts":       String(FormatTime(c.TS)),
	}
	obj.SetStr("cid", c.CID)
	return obj
}

// Vote is a single recorded vote. Value is +1 or -1.
type Vote struct {
	ClaimID string    `json:"claim_id"`
	Value   int       `json:"value"`
	Voter   string    `json:"voter"`
	TS      time.Time `json:"ts"`
}

// Record renders the vote as a votes-ledger line.
func (v Vote) Record() Object {
	return Object{
		"claim_id": String(v.ClaimID),
		"value":    Int(v.Value),
		"voter":    String(v.Voter),
		"ts":       String(FormatTime(v.TS)),
	}
}

// Tally is derived by replaying votes; it is never stored.
type Tally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
	Net  int `json:"net"`
}

// String implements fmt.Stringer.
func (t Tally) String() string {
	return fmt.Sprintf("up=%d down=%d net=%d", t.Up, t.Down, t.Net)
}

// LedgerEntry is an immutable event in the raw or verified stream.
type LedgerEntry struct {
	Kind     Kind      `json:"kind"`
	CID      string    `json:"cid,omitempty"`
	Title    string    `json:"title,omitempty"`
	Text     string    `json:"text,omitempty"`
	ClaimID  string    `json:"claim_id,omitempty"`
	Decision Status    `json:"decision,omitempty"`
	Voter    string    `json:"voter,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Meta     Object    `json:"meta"`
	TS       time.Time `json:"ts"`
}

// Record renders the entry as a ledger line. Empty optional fields are omitted.
func (e LedgerEntry) Record() Object {
	meta := e.Meta
	if meta == nil {
		meta = Object{}
	}
	obj := Object{
		"kind": String(e.Kind),
		"meta": meta,
		"ts":   String(FormatTime(e.TS)),
	}
	obj.SetStr("cid", e.CID)
	obj.SetStr("title", e.Title)
	obj.SetStr("text", e.Text)
	obj.SetStr("claim_id", e.ClaimID)
	obj.SetStr("decision", string(e.Decision))
	obj.SetStr("voter", e.Voter)
	obj.SetStr("notes", e.Notes)
	return obj
}
