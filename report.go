package lblstats

// Tabular output of the split statistics.

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Table headers.
var (
	attributeHeader = []string{"attribute", "count"}
	jointHeader     = []string{"timeofday", "weather", "category", "count"}
	categoryHeader  = []string{"category", "total_count", "occluded", "truncated", "total_area",
		"max_area", "min_area", "anomalies", "small", "medium", "large"}
	instanceHeader = []string{"category_id", "area", "occluded", "truncated", "size_bucket"}
	anomalyHeader  = []string{"image_name", "category", "anomaly_kind", "aspect_ratio", "area",
		"x1", "y1", "x2", "y2", "split"}
)

// AttributeTableName is the file name of the value counts of a scene attribute.
func AttributeTableName(attribute, split string) string {
	return strings.ReplaceAll(attribute, string(os.PathSeparator), "_") + "_" + split + ".csv"
}

// JointTableName is the file name of the category by scene parameters table.
func JointTableName(split string) string {
	return "categories_by_scene_params_" + split + ".csv"
}

// CategoryTableName is the file name of the per category statistics.
func CategoryTableName(split string) string {
	return "category_stats_" + split + ".csv"
}

// InstanceTableName is the file name of the per label instance records.
func InstanceTableName(split string) string {
	return "records_" + split + ".csv"
}

// AnomalyTableName is the file name of the anomaly list.
func AnomalyTableName(split string) string {
	return "anomalies_" + split + ".csv"
}

// ManifestName is the file name of the completion manifest, written after all tables.
func ManifestName(split string) string {
	return "manifest_" + split + ".json"
}

// Manifest records a completed report for one split.
type Manifest struct {
	Anomalies  int      `json:"anomalies"`
	Attributes []string `json:"attributes"` // Scene attributes with a value count table.
	CreatedAt  string   `json:"created_at"`
	Files      []string `json:"files"`
	Images     int      `json:"images"`
	Labels     int      `json:"labels"`
	RunID      string   `json:"run_id"`
	Split      string   `json:"split"`
}

// WriteReport writes all tables for the analysed split to outDir, creating it if needed. Each
// table replaces an existing file atomically. The manifest is written last, so a split without
// a manifest has no complete report.
func WriteReport(outDir string, a *SplitAnalysis, cfg *Config) (Manifest, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return Manifest{}, fmt.Errorf("cannot create output directory %q: %w", outDir, err)
	}

	// Remove a previous manifest first; it is only valid once every table below is replaced.
	manifestPath := filepath.Join(outDir, ManifestName(a.Split))
	if err := os.Remove(manifestPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Manifest{}, fmt.Errorf("cannot remove stale manifest %q: %w", manifestPath, err)
	}

	m := Manifest{
		Anomalies:  a.Categories.NumAnomalies(),
		Attributes: a.Scene.AttributeNames(),
		Images:     a.NumImages,
		Labels:     a.NumLabels,
		RunID:      uuid.NewString(),
		Split:      a.Split,
	}

	write := func(name string, header []string, rows func(w *csv.Writer) error) error {
		path := filepath.Join(outDir, name)
		err := writeFileAtomic(path, func(out io.Writer) error {
			w := csv.NewWriter(out)
			if err := w.Write(header); err != nil {
				return err
			}
			if err := rows(w); err != nil {
				return err
			}
			w.Flush()
			return w.Error()
		})
		if err != nil {
			return err
		}
		m.Files = append(m.Files, name)
		return nil
	}

	for _, attr := range m.Attributes {
		values := a.Scene.Values(attr)
		err := write(AttributeTableName(attr, a.Split), attributeHeader, func(w *csv.Writer) error {
			for _, v := range values {
				if err := w.Write([]string{v.Value, strconv.Itoa(v.Count)}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return Manifest{}, err
		}
	}

	joint := a.Scene.JointRows(cfg.TimesOfDay, cfg.Weathers)
	err := write(JointTableName(a.Split), jointHeader, func(w *csv.Writer) error {
		for _, r := range joint {
			if err := w.Write([]string{r.TimeOfDay, r.Weather, r.Category, strconv.Itoa(r.Count)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}

	err = write(CategoryTableName(a.Split), categoryHeader, func(w *csv.Writer) error {
		for _, name := range a.Categories.Categories() {
			e, _ := a.Categories.Entry(name)
			if err := w.Write(categoryRow(name, e)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}

	err = write(InstanceTableName(a.Split), instanceHeader, func(w *csv.Writer) error {
		for _, r := range a.Categories.Instances() {
			row := []string{
				strconv.Itoa(r.CategoryID),
				formatFloat(r.Area),
				strconv.FormatBool(r.Occluded),
				strconv.FormatBool(r.Truncated),
				strconv.Itoa(int(r.SizeBucket)),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}

	err = write(AnomalyTableName(a.Split), anomalyHeader, func(w *csv.Writer) error {
		for _, an := range a.Categories.Anomalies() {
			if err := w.Write(anomalyRow(an)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}

	m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	err = writeFileAtomic(manifestPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
	if err != nil {
		return Manifest{}, err
	}

	return m, nil
}

func categoryRow(name string, e CategoryEntry) []string {
	return []string{
		name,
		strconv.Itoa(e.TotalCount),
		strconv.Itoa(e.Occluded),
		strconv.Itoa(e.Truncated),
		formatFloat(e.TotalArea),
		formatFloat(e.MaxArea),
		formatFloat(e.MinArea),
		strconv.Itoa(e.Anomalies),
		strconv.Itoa(e.Small),
		strconv.Itoa(e.Medium),
		strconv.Itoa(e.Large),
	}
}

func anomalyRow(a AnomalyEntry) []string {
	return []string{
		a.ImageName,
		a.Category,
		string(a.Kind),
		formatFloat(a.AspectRatio),
		formatFloat(a.Area),
		formatFloat(a.Coords[0]),
		formatFloat(a.Coords[1]),
		formatFloat(a.Coords[2]),
		formatFloat(a.Coords[3]),
		a.Split,
	}
}

// formatFloat uses the shortest representation that round trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// IsProcessed reports whether outDir holds a complete report for split.
func IsProcessed(outDir, split string) bool {
	_, err := os.Stat(filepath.Join(outDir, ManifestName(split)))
	return err == nil
}

// ReadManifest reads the completion manifest of split.
func ReadManifest(outDir, split string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(outDir, ManifestName(split)))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid manifest for split %q: %w", split, err)
	}
	return m, nil
}

// ProcessedSplits returns the splits with a manifest in outDir, sorted.
func ProcessedSplits(outDir string) ([]string, error) {
	files, err := filesByExtInDir(outDir, ".json")
	if err != nil {
		return nil, err
	}

	var splits []string
	for _, f := range files {
		name := filepath.Base(f)
		if !strings.HasPrefix(name, "manifest_") {
			continue
		}
		splits = append(splits, strings.TrimSuffix(strings.TrimPrefix(name, "manifest_"), ".json"))
	}
	return splits, nil
}

// readTable reads the CSV file at path and checks its header. The header is not returned.
func readTable(path string, header []string) (rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	got, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read the header of %q: %w", path, err)
	}
	for i := range header {
		if got[i] != header[i] {
			return nil, fmt.Errorf("unexpected column %q in %q, want %q", got[i], path, header[i])
		}
	}

	rows, err = r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot read %q: %w", path, err)
	}
	return rows, nil
}

// rowParser collects the first parse error of a row.
type rowParser struct {
	err error
}

func (p *rowParser) atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *rowParser) parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *rowParser) parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

// CategoryRow is one row of the category statistics table.
type CategoryRow struct {
	CategoryEntry
	Category string
}

// ReadCategoryStats reads the category statistics table of split.
func ReadCategoryStats(outDir, split string) ([]CategoryRow, error) {
	path := filepath.Join(outDir, CategoryTableName(split))
	rows, err := readTable(path, categoryHeader)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryRow, 0, len(rows))
	for i, row := range rows {
		var p rowParser
		r := CategoryRow{
			Category: row[0],
			CategoryEntry: CategoryEntry{
				TotalCount: p.atoi(row[1]),
				Occluded:   p.atoi(row[2]),
				Truncated:  p.atoi(row[3]),
				TotalArea:  p.parseFloat(row[4]),
				MaxArea:    p.parseFloat(row[5]),
				MinArea:    p.parseFloat(row[6]),
				Anomalies:  p.atoi(row[7]),
				Small:      p.atoi(row[8]),
				Medium:     p.atoi(row[9]),
				Large:      p.atoi(row[10]),
			},
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, p.err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ReadInstances reads the instance records table of split.
func ReadInstances(outDir, split string) ([]InstanceRecord, error) {
	path := filepath.Join(outDir, InstanceTableName(split))
	rows, err := readTable(path, instanceHeader)
	if err != nil {
		return nil, err
	}

	out := make([]InstanceRecord, 0, len(rows))
	for i, row := range rows {
		var p rowParser
		r := InstanceRecord{
			CategoryID: p.atoi(row[0]),
			Area:       p.parseFloat(row[1]),
			Occluded:   p.parseBool(row[2]),
			Truncated:  p.parseBool(row[3]),
			SizeBucket: SizeBucket(p.atoi(row[4])),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, p.err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ReadAnomalies reads the anomaly table of split.
func ReadAnomalies(outDir, split string) ([]AnomalyEntry, error) {
	path := filepath.Join(outDir, AnomalyTableName(split))
	rows, err := readTable(path, anomalyHeader)
	if err != nil {
		return nil, err
	}

	out := make([]AnomalyEntry, 0, len(rows))
	for i, row := range rows {
		var p rowParser
		a := AnomalyEntry{
			ImageName:   row[0],
			Category:    row[1],
			Kind:        AnomalyKind(row[2]),
			AspectRatio: p.parseFloat(row[3]),
			Area:        p.parseFloat(row[4]),
			Coords:      [4]float64{p.parseFloat(row[5]), p.parseFloat(row[6]), p.parseFloat(row[7]), p.parseFloat(row[8])},
			Split:       row[9],
		}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, p.err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ReadAttributeCounts reads the value counts of a scene attribute.
func ReadAttributeCounts(outDir, attribute, split string) ([]ValueCount, error) {
	path := filepath.Join(outDir, AttributeTableName(attribute, split))
	rows, err := readTable(path, attributeHeader)
	if err != nil {
		return nil, err
	}

	out := make([]ValueCount, 0, len(rows))
	for i, row := range rows {
		var p rowParser
		v := ValueCount{Value: row[0], Count: p.atoi(row[1])}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, p.err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadJointRows reads the category by scene parameters table of split.
func ReadJointRows(outDir, split string) ([]JointRow, error) {
	path := filepath.Join(outDir, JointTableName(split))
	rows, err := readTable(path, jointHeader)
	if err != nil {
		return nil, err
	}

	out := make([]JointRow, 0, len(rows))
	for i, row := range rows {
		var p rowParser
		r := JointRow{TimeOfDay: row[0], Weather: row[1], Category: row[2], Count: p.atoi(row[3])}
		if p.err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, p.err)
		}
		out = append(out, r)
	}
	return out, nil
}
