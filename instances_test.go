package lblstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInstances = []InstanceRecord{
	{Area: 100, CategoryID: 2, Occluded: true, SizeBucket: Small},
	{Area: 50, CategoryID: 9, SizeBucket: Small},
	{Area: 8000, CategoryID: 2, SizeBucket: Medium, Truncated: true},
	{Area: 1600, CategoryID: 5, SizeBucket: Medium},
}

func TestParseTristate(t *testing.T) {
	for in, want := range map[string]Tristate{
		"": Any, "any": Any, "ALL": Any,
		"true": OnlyTrue, "1": OnlyTrue, "yes": OnlyTrue,
		"false": OnlyFalse, "0": OnlyFalse, "No": OnlyFalse,
	} {
		got, err := ParseTristate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTristate("maybe")
	assert.Error(t, err)
}

func TestInstanceFilterMatch(t *testing.T) {
	f := InstanceFilter{Categories: []int{2}, Occluded: OnlyFalse}
	assert.False(t, f.Match(testInstances[0]))
	assert.False(t, f.Match(testInstances[1]))
	assert.True(t, f.Match(testInstances[2]))

	f = InstanceFilter{Sizes: []SizeBucket{Medium, Large}, Truncated: OnlyTrue}
	assert.True(t, f.Match(testInstances[2]))
	assert.False(t, f.Match(testInstances[3]))

	assert.True(t, InstanceFilter{}.Match(testInstances[1]))
}

func TestSummarizeInstances(t *testing.T) {
	s := SummarizeInstances(append([]InstanceRecord(nil), testInstances...), InstanceFilter{}, testVocab)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 2437.5, s.Mean)
	assert.Equal(t, 100.0, s.Median)
	assert.Equal(t, 50.0, s.Q1)
	assert.Equal(t, 1600.0, s.Q3)
	assert.InDelta(t, 3777.4275, s.StdDev, 1e-3)
	assert.Equal(t, 0.25, s.OcclusionRate)
	assert.Equal(t, 0.25, s.TruncationRate)

	require.Len(t, s.PerCategory, 3)
	assert.Equal(t, AreaSummary{Count: 1, Mean: 1600, Median: 1600, Q1: 1600, Q3: 1600}, s.PerCategory["person"])
	assert.Equal(t, 2, s.PerCategory["car"].Count)
	assert.Equal(t, 4050.0, s.PerCategory["car"].Mean)
}

func TestSummarizeInstancesFiltered(t *testing.T) {
	s := SummarizeInstances(testInstances, InstanceFilter{Categories: []int{2}}, testVocab)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 0.5, s.OcclusionRate)
	assert.Equal(t, 0.5, s.TruncationRate)
	assert.Equal(t, []string{"car"}, keys(s.PerCategory))

	// The input order is left unchanged.
	assert.Equal(t, 100.0, testInstances[0].Area)
}

func TestSummarizeInstancesEmpty(t *testing.T) {
	s := SummarizeInstances(testInstances, InstanceFilter{Categories: []int{0}}, testVocab)
	assert.Zero(t, s.Count)
	assert.Zero(t, s.OcclusionRate)
	assert.Empty(t, s.PerCategory)
}

func TestSummarizeInstancesUnknownID(t *testing.T) {
	s := SummarizeInstances([]InstanceRecord{{Area: 10, CategoryID: 42}}, InstanceFilter{}, testVocab)
	assert.Contains(t, s.PerCategory, "id 42")
}

func keys(m map[string]AreaSummary) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
