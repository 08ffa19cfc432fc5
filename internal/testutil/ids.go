package testutil

// FixedIDGenerator hands out the same operation id every time, so log
// output and golden files stay stable across runs.
//
// Safe for concurrent use; it holds no mutable state.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator returns a generator for id. An empty id becomes
// "test-op-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-op-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
