package lblstats

// Per category label statistics.

import (
	"math"
)

// CategoryEntry holds the running statistics for one category.
type CategoryEntry struct {
	TotalCount int
	Occluded   int
	Truncated  int
	TotalArea  float64
	MaxArea    float64
	MinArea    float64 // +Inf until the first observation.
	Anomalies  int
	Small      int
	Medium     int
	Large      int
}

func newCategoryEntry() *CategoryEntry {
	return &CategoryEntry{MinArea: math.Inf(1)}
}

// AnomalyEntry is a label flagged by one of the anomaly rules. A label that breaks both rules
// produces two entries.
type AnomalyEntry struct {
	AspectRatio float64
	Area        float64
	Category    string
	Coords      [4]float64 // x1, y1, x2, y2
	ImageName   string
	Kind        AnomalyKind
	Split       string
}

// InstanceRecord is the per label row kept for downstream filtering.
type InstanceRecord struct {
	Area       float64
	CategoryID int
	Occluded   bool
	SizeBucket SizeBucket
	Truncated  bool
}

// CategoryStats accumulates category level statistics for one dataset split.
//
// It is not safe for concurrent use.
type CategoryStats struct {
	split     string
	vocab     Vocabulary
	entries   map[string]*CategoryEntry
	anomalies []AnomalyEntry
	instances []InstanceRecord
}

// NewCategoryStats returns empty statistics for split.
func NewCategoryStats(split string, vocab Vocabulary) *CategoryStats {
	return &CategoryStats{
		split:   split,
		vocab:   vocab,
		entries: make(map[string]*CategoryEntry, vocab.Len()),
	}
}

// Observe adds one label instance from the image imageName. Labels whose category is not in the
// vocabulary are ignored and Observe returns false.
func (s *CategoryStats) Observe(imageName string, l LabelRecord) bool {
	id, ok := s.vocab.ID(l.Category)
	if !ok {
		return false
	}

	e := s.entry(l.Category)
	e.TotalCount++
	if l.Occluded {
		e.Occluded++
	}
	if l.Truncated {
		e.Truncated++
	}

	area := l.Area()
	ratio := l.AspectRatio()
	e.TotalArea += area
	e.MaxArea = math.Max(e.MaxArea, area)
	e.MinArea = math.Min(e.MinArea, area)

	// Both rules are checked independently.
	if IsSizeAnomaly(area) {
		s.addAnomaly(e, imageName, l, SizeAnomaly, area, ratio)
	}
	if IsAspectAnomaly(ratio) {
		s.addAnomaly(e, imageName, l, AspectAnomaly, area, ratio)
	}

	bucket := BucketForArea(area)
	switch bucket {
	case Small:
		e.Small++
	case Medium:
		e.Medium++
	default:
		e.Large++
	}

	s.instances = append(s.instances, InstanceRecord{
		Area:       area,
		CategoryID: id,
		Occluded:   l.Occluded,
		SizeBucket: bucket,
		Truncated:  l.Truncated,
	})

	return true
}

func (s *CategoryStats) addAnomaly(e *CategoryEntry, imageName string, l LabelRecord,
	kind AnomalyKind, area, ratio float64) {

	e.Anomalies++
	s.anomalies = append(s.anomalies, AnomalyEntry{
		AspectRatio: ratio,
		Area:        area,
		Category:    l.Category,
		Coords:      l.Coords,
		ImageName:   imageName,
		Kind:        kind,
		Split:       s.split,
	})
}

// entry returns the entry for category, creating it with default values on first access.
func (s *CategoryStats) entry(category string) *CategoryEntry {
	e, ok := s.entries[category]
	if !ok {
		e = newCategoryEntry()
		s.entries[category] = e
	}
	return e
}

// Entry returns a copy of the statistics for category and whether it has been observed.
func (s *CategoryStats) Entry(category string) (CategoryEntry, bool) {
	e, ok := s.entries[category]
	if !ok {
		return CategoryEntry{}, false
	}
	return *e, true
}

// Categories returns the observed categories in vocabulary id order.
func (s *CategoryStats) Categories() []string {
	var out []string
	for _, name := range s.vocab.Names() {
		if _, ok := s.entries[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Anomalies returns a copy of the flagged labels in observation order.
func (s *CategoryStats) Anomalies() []AnomalyEntry {
	return append([]AnomalyEntry(nil), s.anomalies...)
}

// NumAnomalies returns the number of flagged labels.
func (s *CategoryStats) NumAnomalies() int {
	return len(s.anomalies)
}

// Instances returns a copy of the records of all observed labels in observation order.
func (s *CategoryStats) Instances() []InstanceRecord {
	return append([]InstanceRecord(nil), s.instances...)
}

// Split is the name of the split the statistics belong to.
func (s *CategoryStats) Split() string {
	return s.split
}
