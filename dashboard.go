package lblstats

// Static HTML dashboard over the report tables.

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Dashboard file names.
const (
	IndexPage      = "index.html"
	ScenePage      = "scene.html"
	CategoriesPage = "categories.html"
	AnomaliesPage  = "anomalies.html"
)

//go:embed templates/*
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

var heatmapColors = []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}

// SplitReport holds the report tables of one split as read back from the output directory.
type SplitReport struct {
	Anomalies  []AnomalyEntry
	Attributes map[string][]ValueCount
	Categories []CategoryRow
	Instances  []InstanceRecord
	Joint      []JointRow
	Manifest   Manifest
	Split      string
}

// LoadSplitReport reads the complete report of split from outDir. It fails if the split has not
// been processed.
func LoadSplitReport(outDir, split string) (*SplitReport, error) {
	m, err := ReadManifest(outDir, split)
	if err != nil {
		return nil, fmt.Errorf("split %q has no complete report: %w", split, err)
	}

	r := &SplitReport{
		Attributes: make(map[string][]ValueCount, len(m.Attributes)),
		Manifest:   m,
		Split:      split,
	}
	for _, attr := range m.Attributes {
		if r.Attributes[attr], err = ReadAttributeCounts(outDir, attr, split); err != nil {
			return nil, err
		}
	}
	if r.Joint, err = ReadJointRows(outDir, split); err != nil {
		return nil, err
	}
	if r.Categories, err = ReadCategoryStats(outDir, split); err != nil {
		return nil, err
	}
	if r.Instances, err = ReadInstances(outDir, split); err != nil {
		return nil, err
	}
	if r.Anomalies, err = ReadAnomalies(outDir, split); err != nil {
		return nil, err
	}

	return r, nil
}

// Category returns the row for category, if present.
func (r *SplitReport) Category(category string) (CategoryRow, bool) {
	for _, c := range r.Categories {
		if c.Category == category {
			return c, true
		}
	}
	return CategoryRow{}, false
}

// dashboardLink is an entry on the index page.
type dashboardLink struct {
	File  string
	Title string
}

// RenderDashboard renders the dashboard pages for the processed splits into cfg.DashboardDir,
// reading the tables from cfg.OutputDir. If splits is empty, all processed splits are included.
// Returns the files written.
func RenderDashboard(cfg *Config, splits []string) ([]string, error) {
	vocab, err := cfg.Vocabulary()
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		if splits, err = ProcessedSplits(cfg.OutputDir); err != nil {
			return nil, err
		}
	}
	if len(splits) == 0 {
		return nil, fmt.Errorf("no processed splits in %q", cfg.OutputDir)
	}

	reports := make([]*SplitReport, 0, len(splits))
	for _, split := range splits {
		r, err := LoadSplitReport(cfg.OutputDir, split)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	dir := cfg.DashboardDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create dashboard directory %q: %w", dir, err)
	}

	var written []string
	renderPage := func(name, title string, content ...components.Charter) error {
		page := components.NewPage()
		page.PageTitle = title
		page.AddCharts(content...)
		path := filepath.Join(dir, name)
		if err := writeFileAtomic(path, page.Render); err != nil {
			return fmt.Errorf("failed to render %q: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if err := renderPage(ScenePage, "Scene attributes", sceneCharts(reports, cfg)...); err != nil {
		return written, err
	}
	if err := renderPage(CategoriesPage, "Categories", categoryCharts(reports, vocab)...); err != nil {
		return written, err
	}
	if err := renderPage(AnomaliesPage, "Anomalies", anomalyCharts(reports, vocab)...); err != nil {
		return written, err
	}

	var plots []dashboardLink
	for _, r := range reports {
		if len(r.Instances) == 0 {
			continue
		}
		name := "area_" + r.Split + ".png"
		path := filepath.Join(dir, name)
		if err := PlotAreaDistribution(r.Instances, vocab, r.Split, path); errors.Is(err, ErrNoPlotData) {
			continue
		} else if err != nil {
			return written, err
		}
		written = append(written, path)
		plots = append(plots, dashboardLink{File: name, Title: "Bounding box area per category (" + r.Split + ")"})
	}

	manifests := make([]Manifest, 0, len(reports))
	for _, r := range reports {
		manifests = append(manifests, r.Manifest)
	}
	index := filepath.Join(dir, IndexPage)
	err = writeFileAtomic(index, func(w io.Writer) error {
		return indexTemplate.Execute(w, struct {
			Pages  []dashboardLink
			Plots  []dashboardLink
			Splits []Manifest
			Title  string
		}{
			Pages: []dashboardLink{
				{File: ScenePage, Title: "Scene attributes"},
				{File: CategoriesPage, Title: "Categories"},
				{File: AnomaliesPage, Title: "Anomalies"},
			},
			Plots:  plots,
			Splits: manifests,
			Title:  "Label statistics",
		})
	})
	if err != nil {
		return written, fmt.Errorf("failed to render %q: %w", index, err)
	}
	written = append(written, index)

	Logf("Rendered the dashboard for %d splits to %s", len(reports), dir)
	return written, nil
}

func chartInit(title string) opts.Initialization {
	return opts.Initialization{PageTitle: title, Width: "1200px", Height: "480px"}
}

// sceneCharts returns one bar chart per scene attribute with a series per split, followed by a
// time of day x weather heatmap of label counts per split.
func sceneCharts(reports []*SplitReport, cfg *Config) []components.Charter {
	attrSet := make(map[string]bool)
	for _, r := range reports {
		for attr := range r.Attributes {
			attrSet[attr] = true
		}
	}
	attrs := make([]string, 0, len(attrSet))
	for attr := range attrSet {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var out []components.Charter
	for _, attr := range attrs {
		valueSet := make(map[string]bool)
		for _, r := range reports {
			for _, vc := range r.Attributes[attr] {
				valueSet[vc.Value] = true
			}
		}
		values := make([]string, 0, len(valueSet))
		for v := range valueSet {
			values = append(values, v)
		}
		sort.Strings(values)

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithInitializationOpts(chartInit(attr)),
			charts.WithTitleOpts(opts.Title{Title: "Images by " + attr}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		)
		bar.SetXAxis(values)
		for _, r := range reports {
			counts := make(map[string]int)
			for _, vc := range r.Attributes[attr] {
				counts[vc.Value] = vc.Count
			}
			data := make([]opts.BarData, len(values))
			for i, v := range values {
				data[i] = opts.BarData{Value: counts[v]}
			}
			bar.AddSeries(r.Split, data)
		}
		out = append(out, bar)
	}

	times, weathers := sortedCopy(cfg.TimesOfDay), sortedCopy(cfg.Weathers)
	for _, r := range reports {
		out = append(out, sceneHeatmap(r, times, weathers))
	}

	return out
}

func sceneHeatmap(r *SplitReport, times, weathers []string) *charts.HeatMap {
	timeIdx := make(map[string]int, len(times))
	for i, t := range times {
		timeIdx[t] = i
	}
	weatherIdx := make(map[string]int, len(weathers))
	for i, w := range weathers {
		weatherIdx[w] = i
	}

	totals := make([][]int, len(times))
	for i := range totals {
		totals[i] = make([]int, len(weathers))
	}
	for _, row := range r.Joint {
		ti, ok1 := timeIdx[row.TimeOfDay]
		wi, ok2 := weatherIdx[row.Weather]
		if ok1 && ok2 {
			totals[ti][wi] += row.Count
		}
	}

	var maxCount int
	data := make([]opts.HeatMapData, 0, len(times)*len(weathers))
	for ti := range times {
		for wi := range weathers {
			c := totals[ti][wi]
			if c > maxCount {
				maxCount = c
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{ti, wi, c}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(chartInit("scene heatmap")),
		charts.WithTitleOpts(opts.Title{Title: "Labels by time of day and weather", Subtitle: r.Split}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: times, Name: "time of day"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: weathers, Name: "weather"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCount),
			InRange:    &opts.VisualMapInRange{Color: heatmapColors},
		}),
	)
	hm.SetXAxis(times).AddSeries("labels", data)
	return hm
}

// presentCategories returns the categories present in any report, in vocabulary order.
func presentCategories(reports []*SplitReport, vocab Vocabulary) []string {
	present := make(map[string]bool)
	for _, r := range reports {
		for _, c := range r.Categories {
			present[c.Category] = true
		}
	}
	var out []string
	for _, name := range vocab.Names() {
		if present[name] {
			out = append(out, name)
		}
	}
	return out
}

func stackedBar(title, subtitle string, x []string, series []string, values [][]int) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(chartInit(title)),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x)
	for i, name := range series {
		data := make([]opts.BarData, len(values[i]))
		for j, v := range values[i] {
			data[j] = opts.BarData{Value: v}
		}
		bar.AddSeries(name, data, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	}
	return bar
}

// categoryCharts returns the label totals per split, then per split the occlusion, truncation and
// size bucket breakdowns and the category share.
func categoryCharts(reports []*SplitReport, vocab Vocabulary) []components.Charter {
	cats := presentCategories(reports, vocab)

	totals := charts.NewBar()
	totals.SetGlobalOptions(
		charts.WithInitializationOpts(chartInit("category totals")),
		charts.WithTitleOpts(opts.Title{Title: "Labels per category"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	totals.SetXAxis(cats)
	for _, r := range reports {
		data := make([]opts.BarData, len(cats))
		for i, c := range cats {
			row, _ := r.Category(c)
			data[i] = opts.BarData{Value: row.TotalCount}
		}
		totals.AddSeries(r.Split, data)
	}
	out := []components.Charter{totals}

	for _, r := range reports {
		n := len(cats)
		occ := [][]int{make([]int, n), make([]int, n)}
		trunc := [][]int{make([]int, n), make([]int, n)}
		sizes := [][]int{make([]int, n), make([]int, n), make([]int, n)}
		pie := make([]opts.PieData, 0, n)
		for i, c := range cats {
			row, ok := r.Category(c)
			if !ok {
				continue
			}
			occ[0][i], occ[1][i] = row.Occluded, row.TotalCount-row.Occluded
			trunc[0][i], trunc[1][i] = row.Truncated, row.TotalCount-row.Truncated
			sizes[0][i], sizes[1][i], sizes[2][i] = row.Small, row.Medium, row.Large
			pie = append(pie, opts.PieData{Name: c, Value: row.TotalCount})
		}

		out = append(out,
			stackedBar("Occlusion", r.Split, cats, []string{"occluded", "visible"}, occ),
			stackedBar("Truncation", r.Split, cats, []string{"truncated", "complete"}, trunc),
			stackedBar("Size buckets", r.Split, cats,
				[]string{Small.String(), Medium.String(), Large.String()}, sizes),
		)

		share := charts.NewPie()
		share.SetGlobalOptions(
			charts.WithInitializationOpts(chartInit("category share")),
			charts.WithTitleOpts(opts.Title{Title: "Category share", Subtitle: r.Split}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)
		share.AddSeries("labels", pie)
		out = append(out, share)
	}

	return out
}

// anomalyCharts returns per split the anomaly counts per category stacked by kind.
func anomalyCharts(reports []*SplitReport, vocab Vocabulary) []components.Charter {
	cats := presentCategories(reports, vocab)
	catIdx := make(map[string]int, len(cats))
	for i, c := range cats {
		catIdx[c] = i
	}
	kinds := []AnomalyKind{AspectAnomaly, SizeAnomaly}

	var out []components.Charter
	for _, r := range reports {
		values := make([][]int, len(kinds))
		for k := range kinds {
			values[k] = make([]int, len(cats))
		}
		for _, a := range r.Anomalies {
			i, ok := catIdx[a.Category]
			if !ok {
				continue
			}
			for k, kind := range kinds {
				if a.Kind == kind {
					values[k][i]++
				}
			}
		}
		out = append(out, stackedBar("Anomalies per category",
			fmt.Sprintf("%s, %d anomalies", r.Split, len(r.Anomalies)),
			cats, []string{string(AspectAnomaly), string(SizeAnomaly)}, values))
	}
	return out
}
