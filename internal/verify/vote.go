package verify

import (
	"strings"

	"github.com/roach88/mnemosyne/internal/ir"
)

// VoteInput is the raw form of a vote: either Numeric or Text.
type VoteInput interface {
	voteInput()
}

// Numeric is an explicit vote value. Only +1 and -1 are valid.
type Numeric int8

func (Numeric) voteInput() {}

// Text is a decision word such as "approve" or "no".
type Text string

func (Text) voteInput() {}

// InputFrom builds a VoteInput from the two optional fields a caller may
// send. A value of +1 or -1 wins; otherwise the decision text is used.
func InputFrom(value *int, decision string) VoteInput {
	if value != nil && (*value == 1 || *value == -1) {
		return Numeric(*value)
	}
	if value != nil && decision == "" {
		return Numeric(clampInt8(*value))
	}
	return Text(decision)
}

func clampInt8(v int) int8 {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	default:
		return int8(v)
	}
}

// Synonyms maps lowercase decision words to vote values.
type Synonyms map[string]int

// DefaultSynonyms is the decision vocabulary accepted out of the box.
var DefaultSynonyms = Synonyms{
	"approve": 1,
	"accept":  1,
	"upvote":  1,
	"yes":     1,
	"y":       1,
	"true":    1,
	"1":       1,

	"reject":   -1,
	"downvote": -1,
	"no":       -1,
	"n":        -1,
	"false":    -1,
	"-1":       -1,
}

// Normalize turns in into +1 or -1.
func (s Synonyms) Normalize(in VoteInput) (int, error) {
	switch v := in.(type) {
	case Numeric:
		if v == 1 || v == -1 {
			return int(v), nil
		}
		return 0, ir.Invalid("invalid vote value %d: use +1 or -1", v)
	case Text:
		key := strings.ToLower(strings.TrimSpace(string(v)))
		if val, ok := s[key]; ok && (val == 1 || val == -1) {
			return val, nil
		}
		return 0, ir.Invalid("invalid decision %q: use approve/reject or value +1/-1", string(v))
	case nil:
		return 0, ir.Invalid("missing vote: use approve/reject or value +1/-1")
	default:
		return 0, ir.Invalid("unsupported vote input %T", in)
	}
}

// Normalize applies DefaultSynonyms.
func Normalize(in VoteInput) (int, error) {
	return DefaultSynonyms.Normalize(in)
}
