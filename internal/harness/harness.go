package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/roach88/mnemosyne/internal/app"
	"github.com/roach88/mnemosyne/internal/clock"
	"github.com/roach88/mnemosyne/internal/config"
	"github.com/roach88/mnemosyne/internal/ingest"
	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/testutil"
	"github.com/roach88/mnemosyne/internal/verify"
)

// dataDir is the root of the in-memory filesystem a scenario runs in.
const dataDir = "/harness"

// Harness executes one scenario against a freshly wired App.
type Harness struct {
	app  *app.App
	fs   afero.Fs
	docs map[string]string // setup filename -> cid
}

// Run executes a scenario and returns the result.
//
// Each run gets its own in-memory database and filesystem. Step failures
// that match the expected case are outcomes, not errors; the returned
// error is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg := config.Defaults()
	cfg.DataDir = dataDir
	cfg.DBPath = app.MemoryDB
	if scenario.Quorum > 0 {
		cfg.Quorum = scenario.Quorum
	}
	if scenario.VotePolicy != "" {
		cfg.VotePolicy = scenario.VotePolicy
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario settings: %w", err)
	}

	memfs := afero.NewMemMapFs()
	a, err := app.New(cfg,
		app.WithFs(memfs),
		app.WithClock(clock.Fixed(testutil.Epoch)),
		app.WithLogger(zap.NewNop()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to wire services: %w", err)
	}
	defer a.Close()

	h := &Harness{app: a, fs: memfs, docs: make(map[string]string)}
	ctx = a.Context(ctx)

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	actx := &AssertionContext{App: a, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	verified, err := afero.ReadFile(memfs, a.Ledger.Path(ir.StreamVerified))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read verified ledger: %w", err)
	}
	result.Verified = verified
	return result, nil
}

// executeSetup ingests every setup document. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []IngestStep, result *Result) error {
	for i, step := range setup {
		doc, err := h.app.Ingest.Ingest(ctx, ingest.Upload{
			Filename:    step.Filename,
			Data:        []byte(step.Text),
			Title:       step.Title,
			Description: step.Description,
			License:     step.License,
		})
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		h.docs[step.Filename] = doc.CID

		args := map[string]any{"filename": step.Filename}
		if step.Title != "" {
			args["title"] = step.Title
		}
		result.AddTrace(OpIngest, args, CaseOK, map[string]any{
			"cid":          doc.CID,
			"content_type": string(doc.ContentType),
		})
	}
	return nil
}

// executeFlow runs every flow step and checks its expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		op := step.Op()
		args, res, err := h.executeStep(ctx, op, step)

		outcome := CaseOK
		if err != nil {
			outcome = caseOf(err)
			res = nil
		}
		result.AddTrace(op, args, outcome, res)
		checkExpect(i, op, step.Expect, outcome, res, err, result)
	}
}

func (h *Harness) executeStep(ctx context.Context, op string, step FlowStep) (map[string]any, map[string]any, error) {
	switch op {
	case OpPropose:
		return h.propose(ctx, step.Propose)
	case OpVote:
		return h.vote(ctx, step.Vote)
	case OpDecide:
		return h.decide(ctx, step.Decide)
	case OpAsk:
		return h.ask(ctx, step.Ask)
	case OpSearch:
		return h.search(ctx, step.Search)
	default:
		return nil, nil, fmt.Errorf("step has no operation")
	}
}

func (h *Harness) propose(ctx context.Context, p *ProposeStep) (map[string]any, map[string]any, error) {
	args := map[string]any{"text": p.Text}
	cid := p.CID
	if p.Doc != "" {
		cid = h.docs[p.Doc]
		args["doc"] = p.Doc
	}
	if cid != "" {
		args["cid"] = cid
	}
	if len(p.Sources) > 0 {
		args["sources"] = toAnySlice(p.Sources)
	}

	c, created, err := h.app.Claims.Propose(ctx, p.Text, cid, p.Sources)
	if err != nil {
		return args, nil, err
	}
	return args, map[string]any{
		"claim_id": c.ClaimID,
		"id":       int(c.ID),
		"created":  created,
		"status":   string(c.Status),
	}, nil
}

func (h *Harness) vote(ctx context.Context, v *VoteStep) (map[string]any, map[string]any, error) {
	args := map[string]any{"claim": v.Claim}
	if v.Value != nil {
		args["value"] = *v.Value
	}
	if v.Decision != "" {
		args["decision"] = v.Decision
	}
	if v.Voter != "" {
		args["voter"] = v.Voter
	}

	res, err := h.app.Engine.CastVote(ctx, verify.VoteRequest{
		ClaimRef: claimRef(v.Claim),
		Input:    verify.InputFrom(v.Value, v.Decision),
		Voter:    v.Voter,
	})
	if err != nil {
		return args, nil, err
	}
	return args, map[string]any{
		"value":    res.Vote.Value,
		"up":       res.Tally.Up,
		"down":     res.Tally.Down,
		"net":      res.Tally.Net,
		"promoted": res.Promoted,
		"status":   string(res.Claim.Status),
	}, nil
}

func (h *Harness) decide(ctx context.Context, d *DecideStep) (map[string]any, map[string]any, error) {
	args := map[string]any{"claim": d.Claim, "decision": d.Decision}
	if d.Reviewer != "" {
		args["reviewer"] = d.Reviewer
	}

	c, err := h.app.Engine.SetClaimStatus(ctx, claimRef(d.Claim), d.Reviewer, d.Decision, d.Notes)
	if err != nil {
		return args, nil, err
	}
	return args, map[string]any{
		"claim_id": c.ClaimID,
		"status":   string(c.Status),
	}, nil
}

func (h *Harness) ask(ctx context.Context, q *QueryStep) (map[string]any, map[string]any, error) {
	args := queryArgs(q)
	ans, err := h.app.Engine.Ask(ctx, q.Query, q.Limit)
	if err != nil {
		return args, nil, err
	}
	verified := 0
	for _, c := range ans.Citations {
		if c.Verified {
			verified++
		}
	}
	res := map[string]any{"citations": len(ans.Citations), "verified": verified}
	if len(ans.Citations) > 0 {
		res["first"] = ans.Citations[0].CID
	}
	return args, res, nil
}

func (h *Harness) search(ctx context.Context, q *QueryStep) (map[string]any, map[string]any, error) {
	args := queryArgs(q)
	hits, err := h.app.Ingest.Search(ctx, q.Query, q.Limit)
	if err != nil {
		return args, nil, err
	}
	res := map[string]any{"hits": len(hits)}
	if len(hits) > 0 {
		res["first"] = hits[0].CID
	}
	return args, res, nil
}

func queryArgs(q *QueryStep) map[string]any {
	args := map[string]any{"query": q.Query}
	if q.Limit > 0 {
		args["limit"] = q.Limit
	}
	return args
}

// checkExpect compares a step outcome with its expect clause. A step
// without one must succeed.
func checkExpect(index int, op string, expect *ExpectClause, outcome string, res map[string]any, err error, result *Result) {
	want := CaseOK
	if expect != nil && expect.Case != "" {
		want = expect.Case
	}
	if !strings.EqualFold(outcome, want) {
		msg := fmt.Sprintf("flow[%d] %s: expected case %q, got %q", index, op, want, outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
		return
	}
	if expect == nil {
		return
	}
	for key, wantVal := range expect.Result {
		got, ok := res[key]
		if !ok {
			result.AddError(fmt.Sprintf("flow[%d] %s: result has no field %q", index, op, key))
			continue
		}
		if !valuesEqual(got, wantVal) {
			result.AddError(fmt.Sprintf("flow[%d] %s: field %q = %v, expected %v", index, op, key, got, wantVal))
		}
	}
}

// caseOf names the outcome of a failed step by its error code.
func caseOf(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// claimRef turns a scenario claim reference into something the engine
// resolves: claim ids and row ids pass through, anything else is claim
// text and is hashed.
func claimRef(ref string) string {
	if ir.ValidClaimID(ref) {
		return ref
	}
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ref
	}
	return ir.ClaimID(ref)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
