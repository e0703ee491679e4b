package lblstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSceneStatsValues(t *testing.T) {
	s := NewSceneStats("val", testVocab)
	s.Count(AttrWeather, "rainy")
	s.Count(AttrWeather, "clear")
	s.Count(AttrWeather, "rainy")
	s.Count(AttrScene, "highway")

	assert.Equal(t, []string{AttrScene, AttrWeather}, s.AttributeNames())
	assert.Equal(t, []ValueCount{{Value: "clear", Count: 1}, {Value: "rainy", Count: 2}}, s.Values(AttrWeather))
	assert.Empty(t, s.Values(AttrTimeOfDay))
	assert.Equal(t, "val", s.Split())
}

func TestSceneStatsJointRowsDense(t *testing.T) {
	cfg := DefaultConfig()
	s := NewSceneStats("train", testVocab)
	s.AddCategory("night", "rainy", "car")
	s.AddCategory("night", "rainy", "car")
	s.AddCategory(UndefinedValue, "foggy", "bus")
	// Values outside the configured sets are dropped from the table.
	s.AddCategory("noon", "rainy", "car")

	rows := s.JointRows(cfg.TimesOfDay, cfg.Weathers)
	assert.Len(t, rows, 4*7*10)

	total := 0
	for _, r := range rows {
		total += r.Count
	}
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, s.CategoryCount("night", "rainy", "car"))
	assert.Equal(t, 1, s.CategoryCount("noon", "rainy", "car"))

	// Times and weathers are sorted, categories are in id order.
	assert.Equal(t, JointRow{TimeOfDay: "dawn/dusk", Weather: "clear", Category: "traffic sign"}, rows[0])
	assert.Equal(t, JointRow{TimeOfDay: "dawn/dusk", Weather: "clear", Category: "traffic light"}, rows[1])
	assert.Equal(t, JointRow{TimeOfDay: UndefinedValue, Weather: "undefined", Category: "train"}, rows[len(rows)-1])
}

func TestSceneStatsJointRowsStableAcrossInputOrder(t *testing.T) {
	a := NewSceneStats("val", testVocab)
	b := NewSceneStats("val", testVocab)
	a.AddCategory("daytime", "clear", "car")
	a.AddCategory("night", "snowy", "person")
	b.AddCategory("night", "snowy", "person")
	b.AddCategory("daytime", "clear", "car")

	times := []string{"night", "daytime"}
	weathers := []string{"snowy", "clear"}
	assert.Equal(t, a.JointRows(times, weathers), b.JointRows([]string{"daytime", "night"}, []string{"clear", "snowy"}))
}
