package lblstats

// Filtering and summary statistics over the instance records.

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Tristate selects all, only true or only false values of a flag.
type Tristate int

// The Tristate values.
const (
	Any Tristate = iota
	OnlyTrue
	OnlyFalse
)

// ParseTristate parses "", "any", "true", "false" (and the strconv.ParseBool spellings).
func ParseTristate(s string) (Tristate, error) {
	switch strings.ToLower(s) {
	case "", "any", "all":
		return Any, nil
	case "1", "t", "true", "yes":
		return OnlyTrue, nil
	case "0", "f", "false", "no":
		return OnlyFalse, nil
	}
	return Any, fmt.Errorf("invalid flag filter %q", s)
}

func (t Tristate) match(v bool) bool {
	switch t {
	case OnlyTrue:
		return v
	case OnlyFalse:
		return !v
	}
	return true
}

// InstanceFilter selects instance records. Empty category and size lists select everything.
type InstanceFilter struct {
	Categories []int
	Sizes      []SizeBucket
	Occluded   Tristate
	Truncated  Tristate
}

// Match reports whether r passes the filter.
func (f InstanceFilter) Match(r InstanceRecord) bool {
	if len(f.Categories) > 0 && !containsInt(f.Categories, r.CategoryID) {
		return false
	}
	if len(f.Sizes) > 0 {
		found := false
		for _, s := range f.Sizes {
			if s == r.SizeBucket {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return f.Occluded.match(r.Occluded) && f.Truncated.match(r.Truncated)
}

func containsInt(l []int, v int) bool {
	for _, x := range l {
		if x == v {
			return true
		}
	}
	return false
}

// AreaSummary describes the bounding box areas of a group of instances.
type AreaSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// InstanceSummary is the result of SummarizeInstances.
type InstanceSummary struct {
	AreaSummary
	OcclusionRate  float64                `json:"occlusion_rate"`
	PerCategory    map[string]AreaSummary `json:"per_category"`
	TruncationRate float64                `json:"truncation_rate"`
}

// SummarizeInstances computes area statistics and flag rates for the records that match filter.
func SummarizeInstances(records []InstanceRecord, filter InstanceFilter, vocab Vocabulary) InstanceSummary {
	var (
		all       []float64
		perCat    = make(map[int][]float64)
		occluded  int
		truncated int
	)
	for _, r := range records {
		if !filter.Match(r) {
			continue
		}
		all = append(all, r.Area)
		perCat[r.CategoryID] = append(perCat[r.CategoryID], r.Area)
		if r.Occluded {
			occluded++
		}
		if r.Truncated {
			truncated++
		}
	}

	s := InstanceSummary{
		AreaSummary: summarizeAreas(all),
		PerCategory: make(map[string]AreaSummary, len(perCat)),
	}
	if n := len(all); n > 0 {
		s.OcclusionRate = float64(occluded) / float64(n)
		s.TruncationRate = float64(truncated) / float64(n)
	}
	for id, areas := range perCat {
		name, ok := vocab.Name(id)
		if !ok {
			name = fmt.Sprintf("id %d", id)
		}
		s.PerCategory[name] = summarizeAreas(areas)
	}

	return s
}

// summarizeAreas sorts areas in place.
func summarizeAreas(areas []float64) AreaSummary {
	if len(areas) == 0 {
		return AreaSummary{}
	}
	sort.Float64s(areas)
	mean, std := stat.MeanStdDev(areas, nil)
	if len(areas) == 1 {
		std = 0
	}
	return AreaSummary{
		Count:  len(areas),
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, areas, nil),
		StdDev: std,
		Q1:     stat.Quantile(0.25, stat.Empirical, areas, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, areas, nil),
	}
}
