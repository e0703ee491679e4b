package lblstats

// BDD100K specific functionality.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BDDBox2D is an axis aligned bounding box in absolute pixel coordinates.
type BDDBox2D struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BDDLabel is a single label within a BDD100K image entry. Labels of other shapes (e.g. poly2d
// lane markings) have no Box2D.
type BDDLabel struct {
	Attributes struct {
		Occluded  bool `json:"occluded"`
		Truncated bool `json:"truncated"`
	} `json:"attributes"`
	Box2D    *BDDBox2D `json:"box2d"`
	Category string    `json:"category"`
}

// BDDImage is one element of the top level array in a BDD100K label file.
type BDDImage struct {
	Attributes map[string]string `json:"attributes"`
	Labels     []BDDLabel        `json:"labels"`
	Name       string            `json:"name"`
}

// ImageSource is a lazy, finite, single pass sequence of image records.
//
// Next advances to the next record and returns false when the sequence is exhausted or an error
// occurred, which Err then reports. Record is only valid after Next returned true.
type ImageSource interface {
	Next() bool
	Record() ImageRecord
	Err() error
}

// LabelFilePath returns the path of the label file for split, <root>/<prefix><split>.json.
func LabelFilePath(root, prefix, split string) string {
	return filepath.Join(root, prefix+split+".json")
}

// BDDScanner streams image records from a BDD100K label file without loading the whole file.
type BDDScanner struct {
	closer        io.Closer
	dec           *json.Decoder
	done          bool
	err           error
	numRecords    int
	rec           ImageRecord
	skippedShapes int
	started       bool
}

// NewBDDScanner returns a scanner that reads the JSON array of image entries from r.
func NewBDDScanner(r io.Reader) *BDDScanner {
	return &BDDScanner{dec: json.NewDecoder(r)}
}

// OpenBDDLabels opens the label file at path for streaming. The caller must Close the scanner.
func OpenBDDLabels(path string) (*BDDScanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read label file %q: %w", path, err)
	}

	s := NewBDDScanner(f)
	s.closer = f
	return s, nil
}

// Next decodes the next array element.
func (s *BDDScanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	// Consume the opening bracket of the top level array.
	if !s.started {
		tok, err := s.dec.Token()
		if err != nil {
			s.err = fmt.Errorf("failed to read the label array: %w", err)
			return false
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			s.err = fmt.Errorf("expected a JSON array of images, found %v", tok)
			return false
		}
		s.started = true
	}

	if !s.dec.More() {
		if _, err := s.dec.Token(); err != nil {
			s.err = fmt.Errorf("failed to read the end of the label array: %w", err)
			return false
		}
		s.done = true
		return false
	}

	var img BDDImage
	if err := s.dec.Decode(&img); err != nil {
		s.err = fmt.Errorf("failed to decode image entry %d: %w", s.numRecords, err)
		return false
	}
	s.rec = s.toRecord(img)
	s.numRecords++

	return true
}

// toRecord converts the BDD structure to the intermediate representation. Labels without a
// bounding box are dropped.
func (s *BDDScanner) toRecord(img BDDImage) ImageRecord {
	rec := ImageRecord{
		Attributes: img.Attributes,
		Labels:     make([]LabelRecord, 0, len(img.Labels)),
		Name:       img.Name,
	}
	for _, l := range img.Labels {
		if l.Box2D == nil {
			s.skippedShapes++
			continue
		}
		rec.Labels = append(rec.Labels, LabelRecord{
			Category:  l.Category,
			Coords:    [4]float64{l.Box2D.X1, l.Box2D.Y1, l.Box2D.X2, l.Box2D.Y2},
			Occluded:  l.Attributes.Occluded,
			Truncated: l.Attributes.Truncated,
		})
	}
	return rec
}

// Record returns the image decoded by the last call to Next.
func (s *BDDScanner) Record() ImageRecord {
	return s.rec
}

// Err returns the first decoding error.
func (s *BDDScanner) Err() error {
	return s.err
}

// NumRecords is the number of image entries decoded so far.
func (s *BDDScanner) NumRecords() int {
	return s.numRecords
}

// SkippedShapes is the number of labels dropped because they had no box2d.
func (s *BDDScanner) SkippedShapes() int {
	return s.skippedShapes
}

// Close closes the underlying file, if the scanner owns one.
func (s *BDDScanner) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// SliceSource is an in-memory ImageSource.
type SliceSource struct {
	records []ImageRecord
	next    int
}

// NewSliceSource returns a source that yields records in order.
func NewSliceSource(records ...ImageRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next advances to the next record.
func (s *SliceSource) Next() bool {
	if s.next >= len(s.records) {
		return false
	}
	s.next++
	return true
}

// Record returns the current record.
func (s *SliceSource) Record() ImageRecord {
	return s.records[s.next-1]
}

// Err always returns nil.
func (s *SliceSource) Err() error {
	return nil
}
