package lblstats

import (
	"fmt"
)

// DefaultProgressInterval is the number of images between progress notifications.
const DefaultProgressInterval = 100

// SplitAnalysis owns the aggregators for one dataset split.
type SplitAnalysis struct {
	Categories       *CategoryStats
	Info             SplitInfo
	NumImages        int
	NumLabels        int // Labels with a recognised category.
	ProgressInterval int
	Scene            *SceneStats
	Split            string
}

// NewSplitAnalysis returns empty aggregators for split.
func NewSplitAnalysis(split string, info SplitInfo, vocab Vocabulary) *SplitAnalysis {
	if info.FullName == "" {
		info.FullName = split
	}
	return &SplitAnalysis{
		Categories:       NewCategoryStats(split, vocab),
		Info:             info,
		ProgressInterval: DefaultProgressInterval,
		Scene:            NewSceneStats(split, vocab),
		Split:            split,
	}
}

// Scan consumes src and updates the aggregators. Every ProgressInterval images, and once at the
// end, p is notified with the fraction of Info.Count processed. A nil p is allowed.
//
// There is no way to abort a scan; it either consumes src entirely or returns src's error.
func (a *SplitAnalysis) Scan(src ImageSource, p Progress) error {
	if p == nil {
		p = NopProgress{}
	}
	interval := a.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	notify := func(done bool) {
		f := progressFraction(a.NumImages, a.Info.Count)
		if done && a.Info.Count <= 0 {
			f = 1
		}
		p.SetProgress(f)
		p.SetStatus(statusMessage(a.Info.FullName, f))
	}

	for src.Next() {
		a.observe(src.Record())
		if a.NumImages%interval == 0 {
			notify(false)
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("scanning split %q: %w", a.Split, err)
	}
	notify(true)

	return nil
}

// observe dispatches one image to the scene and category aggregators.
func (a *SplitAnalysis) observe(rec ImageRecord) {
	a.NumImages++
	// Empty values are counted as UndefinedValue, matching the joint table.
	for attr := range rec.Attributes {
		a.Scene.Count(attr, rec.Attribute(attr))
	}

	weather := rec.Attribute(AttrWeather)
	timeOfDay := rec.Attribute(AttrTimeOfDay)
	for _, l := range rec.Labels {
		if !a.Categories.Observe(rec.Name, l) {
			continue
		}
		a.NumLabels++
		a.Scene.AddCategory(timeOfDay, weather, l.Category)
	}
}

// Analyzer computes and saves statistics for the splits of a dataset.
type Analyzer struct {
	cfg   *Config
	vocab Vocabulary
}

// NewAnalyzer validates cfg and returns an analyzer for it.
func NewAnalyzer(cfg *Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	vocab, err := cfg.Vocabulary()
	if err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg, vocab: vocab}, nil
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() *Config {
	return a.cfg
}

// ComputeStatistics streams the label file of split, aggregates it and writes the report
// tables to the configured output directory.
func (a *Analyzer) ComputeStatistics(split string, p Progress) (*SplitAnalysis, error) {
	info, err := a.cfg.Split(split)
	if err != nil {
		return nil, err
	}

	path := a.cfg.LabelFile(split)
	scanner, err := OpenBDDLabels(path)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()
	Logf("Scanning %s labels from %q", info.FullName, path)

	sa := NewSplitAnalysis(split, info, a.vocab)
	sa.ProgressInterval = a.cfg.ProgressInterval
	if err := sa.Scan(scanner, p); err != nil {
		return nil, err
	}
	if n := scanner.SkippedShapes(); n > 0 {
		Logf("Skipped %d labels without a bounding box in split %q", n, split)
	}

	m, err := WriteReport(a.cfg.OutputDir, sa, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to write the report for split %q: %w", split, err)
	}
	Logf("Wrote %d tables for split %q to %s (%d images, %d labels, %d anomalies)",
		len(m.Files), split, a.cfg.OutputDir, sa.NumImages, sa.NumLabels, sa.Categories.NumAnomalies())

	return sa, nil
}

// ProcessSplits runs ComputeStatistics for each split. Splits with a complete report in the
// output directory are skipped unless force is set. newProgress may be nil.
func (a *Analyzer) ProcessSplits(splits []string, force bool, newProgress func(split string) Progress) error {
	for _, split := range splits {
		if !force && IsProcessed(a.cfg.OutputDir, split) {
			Logf("Split %q has already been processed, skipping", split)
			continue
		}

		var p Progress = NopProgress{}
		if newProgress != nil {
			p = newProgress(split)
		}
		if _, err := a.ComputeStatistics(split, p); err != nil {
			return err
		}
	}
	return nil
}
