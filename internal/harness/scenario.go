package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mnemosyne/internal/ir"
)

// Scenario defines a claim-lifecycle scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Quorum overrides the promotion threshold when positive.
	Quorum int `yaml:"quorum,omitempty"`

	// VotePolicy overrides the tally policy when set.
	VotePolicy string `yaml:"vote_policy,omitempty"`

	// Setup ingests documents before the flow. Setup steps must succeed.
	Setup []IngestStep `yaml:"setup,omitempty"`

	// Flow is the main sequence of claim operations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace, state and ledgers after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// IngestStep uploads one document.
type IngestStep struct {
	Filename    string `yaml:"filename"`
	Text        string `yaml:"text"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	License     string `yaml:"license,omitempty"`
}

// FlowStep runs exactly one operation.
type FlowStep struct {
	Propose *ProposeStep `yaml:"propose,omitempty"`
	Vote    *VoteStep    `yaml:"vote,omitempty"`
	Decide  *DecideStep  `yaml:"decide,omitempty"`
	Ask     *QueryStep   `yaml:"ask,omitempty"`
	Search  *QueryStep   `yaml:"search,omitempty"`

	// Expect validates the step outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ProposeStep proposes a claim. Doc names a setup filename whose cid
// becomes the claim cid.
type ProposeStep struct {
	Text    string   `yaml:"text"`
	Doc     string   `yaml:"doc,omitempty"`
	CID     string   `yaml:"cid,omitempty"`
	Sources []string `yaml:"sources,omitempty"`
}

// VoteStep casts a vote, numeric or textual.
type VoteStep struct {
	Claim    string `yaml:"claim"`
	Value    *int   `yaml:"value,omitempty"`
	Decision string `yaml:"decision,omitempty"`
	Voter    string `yaml:"voter,omitempty"`
}

// DecideStep applies a reviewer decision.
type DecideStep struct {
	Claim    string `yaml:"claim"`
	Decision string `yaml:"decision"`
	Reviewer string `yaml:"reviewer,omitempty"`
	Notes    string `yaml:"notes,omitempty"`
}

// QueryStep runs a search or an ask.
type QueryStep struct {
	Query string `yaml:"query"`
	Limit int    `yaml:"limit,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is "ok" or an error code. Empty means "ok".
	Case string `yaml:"case,omitempty"`

	// Result is a subset match against the step result.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace, state or ledgers.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is a step op (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args is a subset match against step args (trace_contains).
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Count is the expected number of steps or records (trace_count, ledger_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected op order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Table, Where and Expect query a relational table (final_state).
	// Expect is also the expected tally for the tally assertion.
	Table  string                 `yaml:"table,omitempty"`
	Where  map[string]interface{} `yaml:"where,omitempty"`
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Stream names a ledger stream (ledger_count).
	Stream string `yaml:"stream,omitempty"`

	// Claim references a claim by id or text (tally).
	Claim string `yaml:"claim,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertLedgerCount   = "ledger_count"
	AssertTally         = "tally"
)

// Step op names as they appear in the trace.
const (
	OpIngest  = "ingest"
	OpPropose = "propose"
	OpVote    = "vote"
	OpDecide  = "decide"
	OpAsk     = "ask"
	OpSearch  = "search"
)

// Op returns the name of the operation this step runs, or "" when it
// names none or more than one.
func (s FlowStep) Op() string {
	var ops []string
	if s.Propose != nil {
		ops = append(ops, OpPropose)
	}
	if s.Vote != nil {
		ops = append(ops, OpVote)
	}
	if s.Decide != nil {
		ops = append(ops, OpDecide)
	}
	if s.Ask != nil {
		ops = append(ops, OpAsk)
	}
	if s.Search != nil {
		ops = append(ops, OpSearch)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Quorum < 0 {
		return fmt.Errorf("quorum must be non-negative")
	}

	files := make(map[string]bool, len(s.Setup))
	for i, step := range s.Setup {
		if step.Filename == "" {
			return fmt.Errorf("setup[%d]: filename is required", i)
		}
		files[step.Filename] = true
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(i, step, files); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateFlowStep(index int, step FlowStep, files map[string]bool) error {
	switch step.Op() {
	case "":
		return fmt.Errorf("flow[%d]: exactly one of propose, vote, decide, ask or search is required", index)
	case OpPropose:
		if step.Propose.Doc != "" && !files[step.Propose.Doc] {
			return fmt.Errorf("flow[%d]: propose references unknown setup document %q", index, step.Propose.Doc)
		}
		if step.Propose.Doc != "" && step.Propose.CID != "" {
			return fmt.Errorf("flow[%d]: propose takes doc or cid, not both", index)
		}
	case OpVote:
		if step.Vote.Claim == "" {
			return fmt.Errorf("flow[%d]: vote requires claim", index)
		}
	case OpDecide:
		if step.Decide.Claim == "" {
			return fmt.Errorf("flow[%d]: decide requires claim", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertLedgerCount:
		if _, err := ir.ParseStream(a.Stream); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for ledger_count", index)
		}
	case AssertTally:
		if a.Claim == "" {
			return fmt.Errorf("assertions[%d]: claim is required for tally", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for tally", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
