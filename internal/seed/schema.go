package seed

import (
	"encoding/json"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mnemosyne/internal/ir"
)

// snapshotSchema closes the snapshot shape: unknown fields, malformed
// cids and unknown statuses are rejected before anything is written.
const snapshotSchema = `
#Stamp: =~"^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}(\\.[0-9]+)?Z$"

#Document: {
	cid:           =~"^[0-9a-f]{64}$"
	sha256?:       =~"^[0-9a-f]{64}$"
	title?:        string
	description?:  string
	license?:      string
	content_type?: "text" | "image" | "pdf" | "audio" | "video" | "binary"
	path?:         string
	ingested_at?:  #Stamp
}

#Claim: {
	id?:          int & >0
	claim_id?:    =~"^clm_[0-9a-f]{16}$"
	text:         =~"[^ \t\r\n]"
	cid?:         string
	sources?:     [...string] | null
	method?:      string
	status?:      "pending" | "verified" | "contested" | "rejected"
	promoted?:    bool
	promoted_at?: #Stamp
	ts?:          #Stamp
}

#Snapshot: {
	documents?: [...#Document] | null
	claims?:    [...#Claim] | null
}
`

// ValidatePayload checks raw against the snapshot schema. Any mismatch is
// a validation error naming the offending path.
func ValidatePayload(raw []byte, format Format) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(snapshotSchema, cue.Filename("snapshot.cue"))
	if err := schema.Err(); err != nil {
		return ir.IOFailure("compile snapshot schema", "", err)
	}

	var payload cue.Value
	switch format {
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return ir.Invalid("snapshot is not valid YAML: %v", err)
		}
		payload = ctx.Encode(doc)
	default:
		if !json.Valid(raw) {
			return ir.Invalid("snapshot is not valid JSON")
		}
		payload = ctx.CompileBytes(raw, cue.Filename("snapshot.json"))
	}
	if err := payload.Err(); err != nil {
		return ir.Invalid("snapshot payload: %v", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Snapshot")).Unify(payload)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return ir.Invalid("snapshot payload: %v", err)
	}
	return nil
}
