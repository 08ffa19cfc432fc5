package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRun_ProposeAndVote(t *testing.T) {
	scenario := &Scenario{
		Name:   "propose_and_vote",
		Quorum: 1,
		Flow: []FlowStep{
			{Propose: &ProposeStep{Text: "Ice melts at 0C"}},
			{Vote: &VoteStep{Claim: "Ice melts at 0C", Value: intPtr(1), Voter: "alice"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: OpVote, Count: 1},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, OpPropose, result.Trace[0].Op)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, true, result.Trace[0].Result["created"])
	assert.Equal(t, OpVote, result.Trace[1].Op)
	assert.Equal(t, CaseOK, result.Trace[1].Case)
	assert.Equal(t, true, result.Trace[1].Result["promoted"])

	assert.Contains(t, string(result.Verified), `"kind":"VERIFIED"`)
	assert.True(t, strings.HasSuffix(string(result.Verified), "\n"))
}

func TestRun_SetupRecordsCID(t *testing.T) {
	scenario := &Scenario{
		Name: "setup",
		Setup: []IngestStep{
			{Filename: "hello.txt", Text: "hello"},
		},
		Flow: []FlowStep{
			{Propose: &ProposeStep{Text: "Greeting", Doc: "hello.txt"}},
		},
		Assertions: []Assertion{
			{Type: AssertLedgerCount, Stream: "raw", Count: 1},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, OpIngest, result.Trace[0].Op)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", result.Trace[0].Result["cid"])
	assert.Equal(t, "text", result.Trace[0].Result["content_type"])
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", result.Trace[1].Args["cid"])

	assert.Empty(t, result.Verified, "nothing was promoted or decided")
}

func TestRun_ExpectedErrorCase(t *testing.T) {
	scenario := &Scenario{
		Name: "expected_error",
		Flow: []FlowStep{
			{
				Vote:   &VoteStep{Claim: "clm_0000000000000000", Decision: "approve"},
				Expect: &ExpectClause{Case: "not_found"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertLedgerCount, Stream: "votes", Count: 0},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "NOT_FOUND", result.Trace[0].Case)
	assert.Nil(t, result.Trace[0].Result)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name: "unexpected_error",
		Flow: []FlowStep{
			{Vote: &VoteStep{Claim: "missing claim", Decision: "approve"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: OpVote, Count: 1},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected case "ok", got "NOT_FOUND"`)
}

func TestRun_ResultMismatch(t *testing.T) {
	scenario := &Scenario{
		Name: "result_mismatch",
		Flow: []FlowStep{
			{
				Propose: &ProposeStep{Text: "Salt dissolves in water"},
				Expect: &ExpectClause{Result: map[string]interface{}{
					"status":  "verified",
					"missing": 1,
				}},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: OpPropose, Count: 1},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, `field "status" = pending, expected verified`)
	assert.Contains(t, joined, `result has no field "missing"`)
}

func TestRun_InvalidSettings(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad_policy",
		VotePolicy: "one-person-many-votes",
		Flow:       []FlowStep{{Propose: &ProposeStep{Text: "x"}}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: OpPropose, Count: 1}},
	}

	_, err := Run(t.Context(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario settings")
}

func TestRun_EmptySetupDocument(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad_setup",
		Setup:      []IngestStep{{Filename: "empty.txt"}},
		Flow:       []FlowStep{{Search: &QueryStep{Query: "anything"}}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: OpSearch, Count: 1}},
	}

	// An empty payload is still a valid document.
	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_IsolatedRuns(t *testing.T) {
	scenario := &Scenario{
		Name: "isolated",
		Flow: []FlowStep{
			{
				Propose: &ProposeStep{Text: "Each run starts empty"},
				Expect:  &ExpectClause{Result: map[string]interface{}{"created": true, "id": 1}},
			},
		},
		Assertions: []Assertion{{Type: AssertLedgerCount, Stream: "claims", Count: 1}},
	}

	for range 2 {
		result, err := Run(t.Context(), scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
	}
}

func TestClaimRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"claim id", "clm_570eb14867a88e1e", "clm_570eb14867a88e1e"},
		{"row id", "12", "12"},
		{"text", "Water boils at 100C", "clm_570eb14867a88e1e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, claimRef(tt.ref))
		})
	}
}
