package lblstats

// VGG Image Annotator (VIA) review projects for anomalous labels.

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"sort"
)

// VIAShape describes the shape of an annotation.
type VIAShape struct {
	Name   string `json:"name"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      VIAShape          `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation `json:"regions"`
	Attributes  map[string]string     `json:"file_attributes"`
	FilePath    string                `json:"filename"`
	Size        int64                 `json:"size"`
}

// VIAOptionsAttribute defines attributes of type "radio" or "dropdown".
type VIAOptionsAttribute struct {
	Type           string            `json:"type"` // "radio" or "dropdown"
	Description    string            `json:"description"`
	Options        map[string]string `json:"options"`
	DefaultOptions map[string]bool   `json:"default_options"`
}

// VIATextAttribute defines attributes of type "text".
type VIATextAttribute struct {
	Type         string `json:"type"` // "text"
	Description  string `json:"description"`
	DefaultValue string `json:"default_value"`
}

// VIAAttributes defines the VIA attribute metadata.
type VIAAttributes struct {
	Region map[string]interface{} `json:"region"`
	File   map[string]interface{} `json:"file"`
}

// VIAProject defines the VIA project structure.
type VIAProject struct {
	Attributes    VIAAttributes               `json:"_via_attributes"`
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
	// Must exist for VIA to load the project. Default values will be used.
	Settings struct{} `json:"_via_settings"`
}

// Attribute keys used in the review projects.
const (
	viaLabelAttribute       = "Label"
	viaAnomalyKindAttribute = "anomaly_kind"
	viaSplitAttribute       = "split"
)

// ToVIA converts anomalies to a VIA project with one region per anomaly. Images are keyed by
// <split>/<image name>, and each file records its split as a file attribute.
func ToVIA(anomalies []AnomalyEntry) VIAProject {
	viaData := VIAProject{
		Attributes: VIAAttributes{
			Region: make(map[string]interface{}),
			File: map[string]interface{}{
				viaSplitAttribute: VIATextAttribute{Type: "text", Description: "Dataset split"},
			},
		},
		ImageMetadata: make(map[string]VIAAnnotatedFile),
	}

	// Adds an option to a VIAOptionsAttribute, creating the attribute if necessary.
	addAttrOption := func(attrName, description, option string) {
		attr, ok := viaData.Attributes.Region[attrName].(VIAOptionsAttribute)
		if !ok {
			attr = VIAOptionsAttribute{
				Type:           "radio",
				Description:    description,
				Options:        make(map[string]string),
				DefaultOptions: make(map[string]bool),
			}
		}
		attr.Options[option] = ""
		viaData.Attributes.Region[attrName] = attr
	}

	for _, img := range groupByImage(anomalies) {
		viaFile := VIAAnnotatedFile{
			Annotations: make([]VIARegionAnnotation, 0, len(img.Anomalies)),
			// Must not be nil as that becomes JSON null.
			Attributes: map[string]string{viaSplitAttribute: img.Split},
			FilePath:   img.Name,
		}
		for _, a := range img.Anomalies {
			x1 := math.Min(a.Coords[0], a.Coords[2])
			y1 := math.Min(a.Coords[1], a.Coords[3])
			x2 := math.Max(a.Coords[0], a.Coords[2])
			y2 := math.Max(a.Coords[1], a.Coords[3])
			viaFile.Annotations = append(viaFile.Annotations, VIARegionAnnotation{
				Attributes: map[string]string{
					viaLabelAttribute:       a.Category,
					viaAnomalyKindAttribute: string(a.Kind),
				},
				Shape: VIAShape{
					Name:   "rect",
					X:      int32(x1),
					Y:      int32(y1),
					Width:  int32(x2 - x1),
					Height: int32(y2 - y1),
				},
			})

			addAttrOption(viaLabelAttribute, "Object category", a.Category)
			addAttrOption(viaAnomalyKindAttribute, "Reason the box was flagged", string(a.Kind))
		}
		viaData.ImageMetadata[path.Join(img.Split, img.Name)] = viaFile
	}

	return viaData
}

// FromVIA converts a (possibly reviewed) VIA project back to anomaly entries. Entries are ordered
// by split and image name, then by region order. Area and aspect ratio are recomputed from the
// region shape.
func FromVIA(project VIAProject) []AnomalyEntry {
	keys := make([]string, 0, len(project.ImageMetadata))
	for k := range project.ImageMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []AnomalyEntry
	for _, k := range keys {
		f := project.ImageMetadata[k]
		for _, r := range f.Annotations {
			l := LabelRecord{
				Category: r.Attributes[viaLabelAttribute],
				Coords: [4]float64{
					float64(r.Shape.X),
					float64(r.Shape.Y),
					float64(r.Shape.X + r.Shape.Width),
					float64(r.Shape.Y + r.Shape.Height),
				},
			}
			out = append(out, AnomalyEntry{
				AspectRatio: l.AspectRatio(),
				Area:        l.Area(),
				Category:    l.Category,
				Coords:      l.Coords,
				ImageName:   f.FilePath,
				Kind:        AnomalyKind(r.Attributes[viaAnomalyKindAttribute]),
				Split:       f.Attributes[viaSplitAttribute],
			})
		}
	}
	return out
}

// WriteVIA writes the VIA project data to outFile.
func WriteVIA(outFile string, data VIAProject) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(outFile, func(w io.Writer) error {
		_, err := w.Write(enc)
		return err
	})
}

// ReadVIA reads and parses a VIA project from the file at path.
func ReadVIA(path string) (VIAProject, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return VIAProject{}, err
	}

	var viaData VIAProject
	if err := json.Unmarshal(enc, &viaData); err != nil {
		return VIAProject{}, fmt.Errorf("failed to parse VIA input from %q: %w", path, err)
	}
	return viaData, nil
}
