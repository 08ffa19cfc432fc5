package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGoldenScenarios runs every scenario under testdata/scenarios and
// compares the verified ledger it leaves behind with its golden file.
//
// To regenerate golden files:
//
//	go test ./internal/harness -run TestGoldenScenarios -update
func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/quorum_promotion.yaml")
	require.NoError(t, err)

	first, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	second, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Verified, second.Verified)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/latest_per_voter.yaml")
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	AssertGolden(t, "latest_per_voter", result)
}
