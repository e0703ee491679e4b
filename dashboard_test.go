package lblstats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSplitReport(t *testing.T) {
	cfg := processedConfig(t)
	r, err := LoadSplitReport(cfg.OutputDir, "val")
	require.NoError(t, err)

	assert.Equal(t, "val", r.Split)
	assert.Len(t, r.Attributes, 3)
	assert.Len(t, r.Joint, 280)
	assert.Len(t, r.Instances, 4)
	assert.Len(t, r.Anomalies, 3)

	car, ok := r.Category("car")
	require.True(t, ok)
	assert.Equal(t, 2, car.TotalCount)
	_, ok = r.Category("bus")
	assert.False(t, ok)

	_, err = LoadSplitReport(cfg.OutputDir, "train")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRenderDashboard(t *testing.T) {
	cfg := processedConfig(t)

	written, err := RenderDashboard(cfg, nil)
	require.NoError(t, err)

	dir := cfg.DashboardDir
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, ScenePage),
		filepath.Join(dir, CategoriesPage),
		filepath.Join(dir, AnomaliesPage),
		filepath.Join(dir, "area_val.png"),
		filepath.Join(dir, IndexPage),
	}, written)

	scene := readFile(t, filepath.Join(dir, ScenePage))
	assert.Contains(t, scene, "echarts")
	assert.Contains(t, scene, "Images by weather")
	assert.Contains(t, scene, "Labels by time of day and weather")

	categories := readFile(t, filepath.Join(dir, CategoriesPage))
	assert.Contains(t, categories, "Labels per category")
	assert.Contains(t, categories, "Size buckets")
	assert.Contains(t, categories, "Category share")

	anomalies := readFile(t, filepath.Join(dir, AnomaliesPage))
	assert.Contains(t, anomalies, "3 anomalies")

	index := readFile(t, filepath.Join(dir, IndexPage))
	for _, s := range []string{`href="scene.html"`, `href="categories.html"`, `href="anomalies.html"`, `src="area_val.png"`, "<td>val</td>"} {
		assert.Contains(t, index, s)
	}

	info, err := os.Stat(filepath.Join(dir, "area_val.png"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRenderDashboardErrors(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0755))

	_, err := RenderDashboard(cfg, nil)
	assert.ErrorContains(t, err, "no processed splits")

	_, err = RenderDashboard(cfg, []string{"val"})
	assert.Error(t, err)
	_, statErr := os.Stat(cfg.DashboardDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPresentCategories(t *testing.T) {
	reports := []*SplitReport{
		{Categories: []CategoryRow{{Category: "train"}, {Category: "car"}}},
		{Categories: []CategoryRow{{Category: "person"}}},
	}
	assert.Equal(t, []string{"car", "person", "train"}, presentCategories(reports, testVocab))
}

func TestIndexTemplateEscapes(t *testing.T) {
	var b strings.Builder
	err := indexTemplate.Execute(&b, struct {
		Pages  []dashboardLink
		Plots  []dashboardLink
		Splits []Manifest
		Title  string
	}{Title: "<script>"})
	require.NoError(t, err)
	assert.NotContains(t, b.String(), "<script>")
}
