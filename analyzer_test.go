package lblstats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	fractions []float64
	statuses  []string
}

func (p *recordingProgress) SetProgress(f float64) { p.fractions = append(p.fractions, f) }
func (p *recordingProgress) SetStatus(msg string)  { p.statuses = append(p.statuses, msg) }

func syntheticImages(n int) []ImageRecord {
	recs := make([]ImageRecord, n)
	for i := range recs {
		recs[i] = ImageRecord{
			Attributes: map[string]string{AttrWeather: "clear", AttrTimeOfDay: "daytime"},
			Labels:     []LabelRecord{label("car", 0, 0, 40, 40)},
			Name:       fmt.Sprintf("%04d.jpg", i),
		}
	}
	return recs
}

func TestScanProgress(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{Count: 500, FullName: "Validation"}, testVocab)
	var p recordingProgress
	require.NoError(t, a.Scan(NewSliceSource(syntheticImages(250)...), &p))

	assert.Equal(t, []float64{0.2, 0.4, 0.5}, p.fractions)
	assert.Equal(t, "Validation split: 20.00% processed", p.statuses[0])
	assert.Equal(t, "Validation split: 50.00% processed", p.statuses[2])
	assert.Equal(t, 250, a.NumImages)
	assert.Equal(t, 250, a.NumLabels)
}

func TestScanProgressClampedAndUnknownCount(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{Count: 10}, testVocab)
	a.ProgressInterval = 5
	var p recordingProgress
	require.NoError(t, a.Scan(NewSliceSource(syntheticImages(20)...), &p))
	assert.Equal(t, []float64{0.5, 1, 1, 1, 1}, p.fractions)
	assert.Equal(t, "val split: 100.00% processed", p.statuses[4])

	b := NewSplitAnalysis("val", SplitInfo{}, testVocab)
	var q recordingProgress
	require.NoError(t, b.Scan(NewSliceSource(syntheticImages(3)...), &q))
	assert.Equal(t, []float64{1}, q.fractions)
}

// scanSnapshot is the observable aggregator state of a scanned split.
type scanSnapshot struct {
	Anomalies  []AnomalyEntry
	Entries    map[string]CategoryEntry
	Instances  []InstanceRecord
	Joint      []JointRow
	NumImages  int
	NumLabels  int
	Attributes map[string][]ValueCount
}

func snapshot(a *SplitAnalysis) scanSnapshot {
	cfg := DefaultConfig()
	s := scanSnapshot{
		Anomalies:  a.Categories.Anomalies(),
		Entries:    make(map[string]CategoryEntry),
		Instances:  a.Categories.Instances(),
		Joint:      a.Scene.JointRows(cfg.TimesOfDay, cfg.Weathers),
		NumImages:  a.NumImages,
		NumLabels:  a.NumLabels,
		Attributes: make(map[string][]ValueCount),
	}
	for _, c := range a.Categories.Categories() {
		s.Entries[c], _ = a.Categories.Entry(c)
	}
	for _, attr := range a.Scene.AttributeNames() {
		s.Attributes[attr] = a.Scene.Values(attr)
	}
	return s
}

func TestScanProgressDoesNotAlterResults(t *testing.T) {
	scan := func(p Progress, interval int) scanSnapshot {
		a := NewSplitAnalysis("val", SplitInfo{Count: 3, FullName: "Validation"}, testVocab)
		a.ProgressInterval = interval
		require.NoError(t, a.Scan(NewBDDScanner(strings.NewReader(valLabels)), p))
		return snapshot(a)
	}

	want := scan(nil, 100)
	require.NotEmpty(t, want.Anomalies)
	for _, interval := range []int{1, 2, 100} {
		var p recordingProgress
		if diff := cmp.Diff(want, scan(&p, interval)); diff != "" {
			t.Errorf("interval %d: results differ with progress reporting (-want +got):\n%s", interval, diff)
		}
		assert.NotEmpty(t, p.fractions)
	}
}

func TestScanNilProgressAndEmptySource(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{Count: 10}, testVocab)
	require.NoError(t, a.Scan(NewSliceSource(), nil))
	assert.Zero(t, a.NumImages)
	assert.Empty(t, a.Categories.Categories())
}

func TestScanMissingAttributesAreUndefined(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{}, testVocab)
	src := NewSliceSource(ImageRecord{Name: "x.jpg", Labels: []LabelRecord{label("bus", 0, 0, 100, 100)}})
	require.NoError(t, a.Scan(src, nil))

	assert.Equal(t, 1, a.Scene.CategoryCount(UndefinedValue, UndefinedValue, "bus"))
	// Only attributes that are present are counted.
	assert.Empty(t, a.Scene.AttributeNames())
}

func TestScanEmptyAttributeIsUndefinedInBothTables(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{}, testVocab)
	src := NewSliceSource(ImageRecord{
		Attributes: map[string]string{AttrWeather: "", AttrTimeOfDay: "night"},
		Labels:     []LabelRecord{label("bus", 0, 0, 100, 100)},
		Name:       "x.jpg",
	})
	require.NoError(t, a.Scan(src, nil))

	assert.Equal(t, []ValueCount{{Value: UndefinedValue, Count: 1}}, a.Scene.Values(AttrWeather))
	assert.Equal(t, 1, a.Scene.CategoryCount("night", UndefinedValue, "bus"))
}

func TestScanSourceError(t *testing.T) {
	a := NewSplitAnalysis("val", SplitInfo{}, testVocab)
	s := NewBDDScanner(strings.NewReader(`[{"name": "a.jpg"}, nope]`))
	err := a.Scan(s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scanning split "val"`)
	assert.Equal(t, 1, a.NumImages)
}

func TestComputeStatistics(t *testing.T) {
	cfg := testConfig(t)
	analyzer, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	var p recordingProgress
	sa, err := analyzer.ComputeStatistics("val", &p)
	require.NoError(t, err)

	assert.Equal(t, 3, sa.NumImages)
	assert.Equal(t, 4, sa.NumLabels)
	assert.Len(t, sa.Categories.Anomalies(), 3)
	assert.Equal(t, []float64{1}, p.fractions)

	car, _ := sa.Categories.Entry("car")
	assert.Equal(t, CategoryEntry{
		TotalCount: 2, Occluded: 1, Truncated: 1,
		TotalArea: 8100, MaxArea: 8000, MinArea: 100,
		Anomalies: 1, Small: 1, Medium: 1,
	}, car)
	assert.Equal(t, 1, sa.Scene.CategoryCount(UndefinedValue, "clear", "person"))

	assert.True(t, IsProcessed(cfg.OutputDir, "val"))
	anomalies, err := ReadAnomalies(cfg.OutputDir, "val")
	require.NoError(t, err)
	assert.Len(t, anomalies, 3)
}

func TestComputeStatisticsErrors(t *testing.T) {
	cfg := testConfig(t)
	analyzer, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	_, err = analyzer.ComputeStatistics("test", nil)
	assert.ErrorContains(t, err, `unknown split "test"`)

	cfg.Splits["train"] = SplitInfo{Count: 1}
	_, err = analyzer.ComputeStatistics("train", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsProcessed(cfg.OutputDir, "train"))
}

func TestNewAnalyzerInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = ""
	_, err := NewAnalyzer(cfg)
	assert.Error(t, err)
}

func TestProcessSplitsSkipsProcessed(t *testing.T) {
	cfg := testConfig(t)
	analyzer, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	require.NoError(t, analyzer.ProcessSplits([]string{"val"}, false, nil))
	first, err := ReadManifest(cfg.OutputDir, "val")
	require.NoError(t, err)

	calls := 0
	newProgress := func(string) Progress {
		calls++
		return NopProgress{}
	}
	require.NoError(t, analyzer.ProcessSplits([]string{"val"}, false, newProgress))
	second, err := ReadManifest(cfg.OutputDir, "val")
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Zero(t, calls)

	require.NoError(t, analyzer.ProcessSplits([]string{"val"}, true, newProgress))
	third, err := ReadManifest(cfg.OutputDir, "val")
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, third.RunID)
	assert.Equal(t, 1, calls)
}

func TestOutputIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	analyzer, err := NewAnalyzer(cfg)
	require.NoError(t, err)

	read := func() map[string][]byte {
		m, err := ReadManifest(cfg.OutputDir, "val")
		require.NoError(t, err)
		out := make(map[string][]byte, len(m.Files))
		for _, f := range m.Files {
			data, err := os.ReadFile(filepath.Join(cfg.OutputDir, f))
			require.NoError(t, err)
			out[f] = data
		}
		return out
	}

	_, err = analyzer.ComputeStatistics("val", nil)
	require.NoError(t, err)
	first := read()
	_, err = analyzer.ComputeStatistics("val", nil)
	require.NoError(t, err)
	assert.Equal(t, first, read())
}
