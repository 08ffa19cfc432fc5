package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Op     string         `json:"op"`
	Args   map[string]any `json:"args,omitempty"`
	Case   string         `json:"case"`
	Result map[string]any `json:"result,omitempty"`
}

// CaseOK is the case of a step that succeeded.
const CaseOK = "ok"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds setup and flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Verified is the verified ledger as written, one canonical JSON line
	// per record, each terminated by a newline.
	Verified []byte `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace and returns its sequence number.
func (r *Result) AddTrace(op string, args map[string]any, outcome string, result map[string]any) int64 {
	seq := int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    seq,
		Op:     op,
		Args:   args,
		Case:   outcome,
		Result: result,
	})
	return seq
}
