package lblstats

// Scene level statistics.

import (
	"sort"
)

// ValueCount is the number of images with a given attribute value.
type ValueCount struct {
	Value string
	Count int
}

// JointRow is one cell of the dense time of day x weather x category table.
type JointRow struct {
	TimeOfDay string
	Weather   string
	Category  string
	Count     int
}

type sceneKey struct {
	timeOfDay string
	weather   string
}

// SceneStats accumulates scene attribute counts and the distribution of labels over
// (time of day, weather) pairs for one split.
//
// It is not safe for concurrent use.
type SceneStats struct {
	split  string
	vocab  Vocabulary
	counts map[string]map[string]int
	joint  map[sceneKey]map[string]int
}

// NewSceneStats returns empty statistics for split.
func NewSceneStats(split string, vocab Vocabulary) *SceneStats {
	return &SceneStats{
		split:  split,
		vocab:  vocab,
		counts: make(map[string]map[string]int),
		joint:  make(map[sceneKey]map[string]int),
	}
}

// Count records one image with attribute set to value.
func (s *SceneStats) Count(attribute, value string) {
	m, ok := s.counts[attribute]
	if !ok {
		m = make(map[string]int)
		s.counts[attribute] = m
	}
	m[value]++
}

// AddCategory records one label of category in a scene with the given time of day and weather.
func (s *SceneStats) AddCategory(timeOfDay, weather, category string) {
	k := sceneKey{timeOfDay: timeOfDay, weather: weather}
	m, ok := s.joint[k]
	if !ok {
		m = make(map[string]int)
		s.joint[k] = m
	}
	m[category]++
}

// AttributeNames returns the observed attribute names, sorted.
func (s *SceneStats) AttributeNames() []string {
	names := make([]string, 0, len(s.counts))
	for k := range s.counts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns the counts for attribute, sorted by value.
func (s *SceneStats) Values(attribute string) []ValueCount {
	m := s.counts[attribute]
	out := make([]ValueCount, 0, len(m))
	for v, c := range m {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// CategoryCount returns the number of labels of category seen under the given scene.
func (s *SceneStats) CategoryCount(timeOfDay, weather, category string) int {
	return s.joint[sceneKey{timeOfDay: timeOfDay, weather: weather}][category]
}

// JointRows returns the dense table over the sorted timesOfDay, the sorted weathers and all
// vocabulary categories in id order. Combinations that were never observed have a zero count.
// Observed values outside the given sets are not part of the table.
func (s *SceneStats) JointRows(timesOfDay, weathers []string) []JointRow {
	times := sortedCopy(timesOfDay)
	weather := sortedCopy(weathers)
	categories := s.vocab.Names()

	rows := make([]JointRow, 0, len(times)*len(weather)*len(categories))
	for _, t := range times {
		for _, w := range weather {
			for _, c := range categories {
				rows = append(rows, JointRow{
					TimeOfDay: t,
					Weather:   w,
					Category:  c,
					Count:     s.CategoryCount(t, w, c),
				})
			}
		}
	}
	return rows
}

// Split is the name of the split the statistics belong to.
func (s *SceneStats) Split() string {
	return s.split
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
