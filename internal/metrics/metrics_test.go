package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Voted(1)
	m.Voted(1)
	m.Voted(-1)
	m.Promoted()
	m.Proposed(true)
	m.Proposed(false)
	m.Searched(0)
	m.Imported("claims", 3)
	m.Imported("remapped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VotesCast.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesCast.WithLabelValues("down")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Promotions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsProposed.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("empty")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SeedImported.WithLabelValues("claims")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Voted(1)
		m.Promoted()
		m.Decided("verified")
		m.CacheLookup(true)
	})

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Empty(t, buf.String())
}

func TestPrivateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.Promoted()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Promotions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Promotions))
}

func TestWriteText(t *testing.T) {
	m := New()
	m.Decided("rejected")
	m.Promoted()

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Equal(t,
		"mnemosyne_decisions_total{decision=\"rejected\"} 1\nmnemosyne_promotions_total 1\n",
		buf.String())
}
