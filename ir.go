package lblstats

// The intermediate annotation metadata representation.

import (
	"fmt"
	"math"
	"sort"
)

// Keys for the scene attributes the pipeline reads.
const (
	AttrWeather   = "weather"
	AttrTimeOfDay = "timeofday"
	AttrScene     = "scene"

	// UndefinedValue is used in the joint scene table for images that lack an attribute.
	UndefinedValue = "undefined"
)

// Size anomaly and COCO size bucket thresholds, in square pixels.
const (
	MinNormalArea   = 16 * 16    // Areas at or below are size anomalies.
	MaxNormalArea   = 1024 * 576 // Areas at or above are size anomalies.
	SmallAreaLimit  = 32 * 32    // Areas below are small.
	MediumAreaLimit = 96 * 96    // Areas up to and including are medium.
	MinNormalAspect = 0.1        // Aspect ratios at or below are anomalies.
	MaxNormalAspect = 10.0       // Aspect ratios at or above are anomalies.
)

// LabelRecord is the intermediate representation of a single object label.
type LabelRecord struct {
	Category  string
	Coords    [4]float64 // Absolute x1, y1, x2, y2 pixel offsets.
	Occluded  bool
	Truncated bool
}

// Width is the object width from l.Coords.
func (l LabelRecord) Width() float64 {
	return l.Coords[2] - l.Coords[0]
}

// Height is the object height from l.Coords.
func (l LabelRecord) Height() float64 {
	return l.Coords[3] - l.Coords[1]
}

// Area is the bounding box area in square pixels.
func (l LabelRecord) Area() float64 {
	return l.Width() * l.Height()
}

// AspectRatio is width/height. A box with zero height has a ratio of math.MaxFloat64, which
// always classifies it as an aspect-ratio anomaly.
func (l LabelRecord) AspectRatio() float64 {
	h := l.Height()
	if h == 0 {
		return math.MaxFloat64
	}
	return l.Width() / h
}

// ImageRecord is the intermediate representation of one annotated image.
type ImageRecord struct {
	Attributes map[string]string // Scene attributes such as weather and timeofday.
	Labels     []LabelRecord
	Name       string
}

// Attribute returns the value of the scene attribute key, or UndefinedValue if it is missing.
func (r ImageRecord) Attribute(key string) string {
	if v, ok := r.Attributes[key]; ok && v != "" {
		return v
	}
	return UndefinedValue
}

// SizeBucket is a COCO style size group.
type SizeBucket int

// The size buckets. The numeric values are written to the instance table.
const (
	Small SizeBucket = iota
	Medium
	Large
)

// BucketForArea classifies area by COCO convention. The medium range is inclusive at both ends.
func BucketForArea(area float64) SizeBucket {
	switch {
	case area < SmallAreaLimit:
		return Small
	case area <= MediumAreaLimit:
		return Medium
	default:
		return Large
	}
}

func (b SizeBucket) String() string {
	switch b {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	}
	return fmt.Sprintf("SizeBucket(%d)", int(b))
}

// ParseSizeBucket is the inverse of SizeBucket.String.
func ParseSizeBucket(s string) (SizeBucket, error) {
	for _, b := range []SizeBucket{Small, Medium, Large} {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown size bucket %q", s)
}

// AnomalyKind names the rule that flagged a label.
type AnomalyKind string

// The anomaly kinds.
const (
	SizeAnomaly   AnomalyKind = "size"
	AspectAnomaly AnomalyKind = "aspect-ratio"
)

// IsSizeAnomaly reports whether area is outside the normal size range.
func IsSizeAnomaly(area float64) bool {
	return area <= MinNormalArea || area >= MaxNormalArea
}

// IsAspectAnomaly reports whether ratio is outside the normal aspect ratio range.
func IsAspectAnomaly(ratio float64) bool {
	return ratio <= MinNormalAspect || ratio >= MaxNormalAspect
}

// DefaultCategories is the BDD100K detection vocabulary.
var DefaultCategories = map[string]int{
	"traffic sign":  0,
	"traffic light": 1,
	"car":           2,
	"rider":         3,
	"motor":         4,
	"person":        5,
	"bus":           6,
	"truck":         7,
	"bike":          8,
	"train":         9,
}

// Vocabulary is a closed set of category names with stable integer ids.
type Vocabulary struct {
	ids   map[string]int
	names []string // Sorted by id.
}

// NewVocabulary validates the name to id mapping. Ids must be unique and non-negative.
func NewVocabulary(categories map[string]int) (Vocabulary, error) {
	if len(categories) == 0 {
		return Vocabulary{}, fmt.Errorf("empty category vocabulary")
	}

	v := Vocabulary{
		ids:   make(map[string]int, len(categories)),
		names: make([]string, 0, len(categories)),
	}
	seen := make(map[int]string, len(categories))
	for name, id := range categories {
		if id < 0 {
			return Vocabulary{}, fmt.Errorf("negative id %d for category %q", id, name)
		}
		if other, ok := seen[id]; ok {
			return Vocabulary{}, fmt.Errorf("categories %q and %q share id %d", other, name, id)
		}
		seen[id] = name
		v.ids[name] = id
		v.names = append(v.names, name)
	}
	sort.Slice(v.names, func(i, j int) bool {
		return v.ids[v.names[i]] < v.ids[v.names[j]]
	})

	return v, nil
}

// MustVocabulary is like NewVocabulary but panics on an invalid mapping.
func MustVocabulary(categories map[string]int) Vocabulary {
	v, err := NewVocabulary(categories)
	if err != nil {
		panic(err)
	}
	return v
}

// ID returns the id of name and whether name is in the vocabulary.
func (v Vocabulary) ID(name string) (int, bool) {
	id, ok := v.ids[name]
	return id, ok
}

// Name returns the category name for id.
func (v Vocabulary) Name(id int) (string, bool) {
	for _, n := range v.names {
		if v.ids[n] == id {
			return n, true
		}
	}
	return "", false
}

// Contains reports whether name is a recognised category.
func (v Vocabulary) Contains(name string) bool {
	_, ok := v.ids[name]
	return ok
}

// Names returns the category names ordered by id.
func (v Vocabulary) Names() []string {
	return append([]string(nil), v.names...)
}

// Len is the number of categories.
func (v Vocabulary) Len() int {
	return len(v.names)
}
