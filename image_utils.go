package lblstats

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Outline colours for annotated anomalies.
var (
	aspectAnomalyColor = color.NRGBA{R: 255, A: 255}
	sizeAnomalyColor   = color.NRGBA{B: 255, A: 255}
)

const outlineThickness = 3

// ImageCount is the number of anomalies of one kind in an image.
type ImageCount struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

// TopAnomalyImages returns up to n images with the most anomalies of kind. Ties are ordered by
// image name.
func TopAnomalyImages(anomalies []AnomalyEntry, kind AnomalyKind, n int) []ImageCount {
	counts := make(map[string]int)
	for _, a := range anomalies {
		if a.Kind == kind {
			counts[a.ImageName]++
		}
	}

	out := make([]ImageCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, ImageCount{Count: c, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})

	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// AnomaliesForImage returns the anomalies flagged in the image name.
func AnomaliesForImage(anomalies []AnomalyEntry, name string) []AnomalyEntry {
	var out []AnomalyEntry
	for _, a := range anomalies {
		if a.ImageName == name {
			out = append(out, a)
		}
	}
	return out
}

// AnnotateAnomalies returns a copy of img with the bounding box of each anomaly outlined, red for
// aspect ratio anomalies and blue for size anomalies.
func AnnotateAnomalies(img image.Image, anomalies []AnomalyEntry) *image.NRGBA {
	out := imaging.Clone(img)
	for _, a := range anomalies {
		c := sizeAnomalyColor
		if a.Kind == AspectAnomaly {
			c = aspectAnomalyColor
		}
		// The coordinates may be flipped in the source labels.
		r := image.Rect(
			int(math.Round(math.Min(a.Coords[0], a.Coords[2]))),
			int(math.Round(math.Min(a.Coords[1], a.Coords[3]))),
			int(math.Round(math.Max(a.Coords[0], a.Coords[2]))),
			int(math.Round(math.Max(a.Coords[1], a.Coords[3]))),
		)
		drawOutline(out, r, c, outlineThickness)
	}
	return out
}

// drawOutline draws the border of r with the given thickness, clipped to the image bounds. The
// border grows inwards from r.
func drawOutline(img *image.NRGBA, r image.Rectangle, c color.NRGBA, thickness int) {
	bounds := img.Bounds()
	set := func(x, y int) {
		if (image.Point{X: x, Y: y}).In(bounds) {
			img.SetNRGBA(x, y, c)
		}
	}

	// A degenerate box is still drawn as a line.
	if r.Dx() == 0 {
		r.Max.X++
	}
	if r.Dy() == 0 {
		r.Max.Y++
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			set(x, r.Min.Y+t)
			set(x, r.Max.Y-1-t)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			set(r.Min.X+t, y)
			set(r.Max.X-1-t, y)
		}
	}
}

// LoadAnnotatedImage loads the image at path and outlines the anomalies that belong to it.
func LoadAnnotatedImage(path string, anomalies []AnomalyEntry) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return AnnotateAnomalies(img, AnomaliesForImage(anomalies, filepath.Base(path))), nil
}

// EncodeAnnotatedPNG writes img to w, downscaled to maxWidth when it is wider.
func EncodeAnnotatedPNG(w io.Writer, img image.Image, maxWidth int) error {
	return imaging.Encode(w, fitWidth(img, maxWidth), imaging.PNG)
}

func fitWidth(img image.Image, maxWidth int) image.Image {
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return img
}

// SaveAnnotatedAnomalies writes annotated copies of the top n images for each anomaly kind of
// split to outDir as <split>_<kind>_<image base name>.jpg. Images missing from the image root are
// logged and skipped. Returns the paths written.
func SaveAnnotatedAnomalies(cfg *Config, split string, anomalies []AnomalyEntry, n int,
	outDir string, maxWidth, jpegQuality int) ([]string, error) {

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create image output directory %q: %w", outDir, err)
	}

	var written []string
	for _, kind := range []AnomalyKind{AspectAnomaly, SizeAnomaly} {
		for _, ic := range TopAnomalyImages(anomalies, kind, n) {
			src := cfg.ImagePath(split, ic.Name)
			img, err := LoadAnnotatedImage(src, anomalies)
			if errors.Is(err, os.ErrNotExist) {
				Logf("Image %q not found, skipping", src)
				continue
			} else if err != nil {
				return written, fmt.Errorf("failed to annotate %q: %w", src, err)
			}

			base := strings.TrimSuffix(ic.Name, filepath.Ext(ic.Name))
			dst := filepath.Join(outDir, fmt.Sprintf("%s_%s_%s.jpg", split, kind, base))
			if err := imaging.Save(fitWidth(img, maxWidth), dst, imaging.JPEGQuality(jpegQuality)); err != nil {
				return written, fmt.Errorf("failed to save %q: %w", dst, err)
			}
			written = append(written, dst)
		}
	}

	return written, nil
}
