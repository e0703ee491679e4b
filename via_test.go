package lblstats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToVIA(t *testing.T) {
	p := ToVIA(tfAnomalies)

	require.Len(t, p.ImageMetadata, 2)
	a, ok := p.ImageMetadata["val/a.jpg"]
	require.True(t, ok)
	assert.Equal(t, "a.jpg", a.FilePath)
	assert.Equal(t, map[string]string{"split": "val"}, a.Attributes)
	require.Len(t, a.Annotations, 2)
	assert.Equal(t, VIARegionAnnotation{
		Attributes: map[string]string{"Label": "train", "anomaly_kind": "aspect-ratio"},
		Shape:      VIAShape{Name: "rect", X: 0, Y: 0, Width: 1, Height: 50},
	}, a.Annotations[1])

	// Flipped corners become a positive size.
	b := p.ImageMetadata["val/b.jpg"]
	assert.Equal(t, VIAShape{Name: "rect", X: 0, Y: 350, Width: 640, Height: 10}, b.Annotations[0].Shape)

	labels, ok := p.Attributes.Region["Label"].(VIAOptionsAttribute)
	require.True(t, ok)
	assert.Equal(t, "radio", labels.Type)
	assert.Equal(t, map[string]string{"car": "", "train": "", "bus": ""}, labels.Options)
	kinds, ok := p.Attributes.Region["anomaly_kind"].(VIAOptionsAttribute)
	require.True(t, ok)
	assert.Len(t, kinds.Options, 2)
	assert.Contains(t, p.Attributes.File, "split")
}

func TestVIAReviewRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.json")
	require.NoError(t, WriteVIA(path, ToVIA(tfAnomalies)))

	p, err := ReadVIA(path)
	require.NoError(t, err)

	// A reviewer moves the corner of the train box.
	f := p.ImageMetadata["val/a.jpg"]
	f.Annotations[1].Shape.Width = 20
	p.ImageMetadata["val/a.jpg"] = f

	got := FromVIA(p)
	require.Len(t, got, 3)
	assert.Equal(t, AnomalyEntry{
		AspectRatio: 0.4, Area: 1000, Category: "train", Coords: [4]float64{0, 0, 20, 50},
		ImageName: "a.jpg", Kind: AspectAnomaly, Split: "val",
	}, got[1])
	assert.Equal(t, "b.jpg", got[2].ImageName)
	assert.Equal(t, [4]float64{0, 350, 640, 360}, got[2].Coords)
}

func TestReadVIAErrors(t *testing.T) {
	_, err := ReadVIA(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}
