package lblstats

// TFRecord export of anomalous labels for re-labelling pipelines.

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// Frame size of the BDD100K images, used when an image cannot be read.
const (
	DefaultImageWidth  = 1280
	DefaultImageHeight = 720
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// anomalousImage groups the anomalies of one image.
type anomalousImage struct {
	Anomalies []AnomalyEntry
	Name      string
	Split     string
}

// groupByImage groups anomalies by split and image in order of first appearance.
func groupByImage(anomalies []AnomalyEntry) []anomalousImage {
	index := make(map[[2]string]int)
	var out []anomalousImage
	for _, a := range anomalies {
		key := [2]string{a.Split, a.ImageName}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, anomalousImage{Name: a.ImageName, Split: a.Split})
		}
		out[i].Anomalies = append(out[i].Anomalies, a)
	}
	return out
}

// readImageData returns the raw image data at p along with its dimensions and format.
func readImageData(p string) ([]byte, image.Config, string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, image.Config{}, "", err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, image.Config{}, "", fmt.Errorf("failed to decode the image metadata: %w", err)
	}
	return data, cfg, format, nil
}

// toTFFeatures converts the anomalies of one image to a feature map. Label ids are the vocabulary
// ids shifted by one, since id 0 is reserved for the background class. If imagePath is non-nil and
// the image can be read, it is embedded and its size is used to normalise the box coordinates.
func toTFFeatures(img anomalousImage, vocab Vocabulary, imagePath func(split, name string) string) TFFeatureMap {
	width, height := DefaultImageWidth, DefaultImageHeight

	f := make(TFFeatureMap, 16)
	f["image/filename"] = img.Name
	f["image/source_id"] = path.Join(img.Split, img.Name)

	if imagePath != nil {
		p := imagePath(img.Split, img.Name)
		if data, cfg, format, err := readImageData(p); err == nil {
			width, height = cfg.Width, cfg.Height
			f["image/encoded"] = data
			f["image/format"] = format
		} else {
			Logf("Image %q not embedded: %v", p, err)
		}
	}
	f["image/width"] = width
	f["image/height"] = height

	n := len(img.Anomalies)
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	areas := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	kinds := make([]string, n)
	for i, a := range img.Anomalies {
		xmins[i] = float32(math.Min(a.Coords[0], a.Coords[2]) / float64(width))
		ymins[i] = float32(math.Min(a.Coords[1], a.Coords[3]) / float64(height))
		xmaxs[i] = float32(math.Max(a.Coords[0], a.Coords[2]) / float64(width))
		ymaxs[i] = float32(math.Max(a.Coords[1], a.Coords[3]) / float64(height))
		areas[i] = float32(a.Area)
		classes[i] = a.Category
		if id, ok := vocab.ID(a.Category); ok {
			classIDs[i] = int64(id) + 1
		}
		kinds[i] = string(a.Kind)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/area"] = areas
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs
	f["image/object/anomaly/kind"] = kinds

	return f
}

// WriteAnomalyTFRecord writes one tensorflow.Example per anomalous image to the TFRecord file at
// recordFilePath, or to numShards files with a shard suffix when numShards > 1. imagePath may be
// nil, in which case no image data is embedded.
func WriteAnomalyTFRecord(recordFilePath string, anomalies []AnomalyEntry, vocab Vocabulary,
	imagePath func(split, name string) string, numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	images := groupByImage(anomalies)
	shardSize := int(math.Ceil(float64(len(images)) / float64(numShards)))
	if shardSize == 0 {
		shardSize = 1
	}

	for shardIdx := 0; shardIdx < numShards; shardIdx++ {
		start := shardIdx * shardSize
		end := start + shardSize
		if start > len(images) {
			start = len(images)
		}
		if end > len(images) {
			end = len(images)
		}

		shardPath := recordFilePath
		if numShards > 1 {
			shardPath += fmt.Sprintf("-%05d-of-%05d", shardIdx, numShards)
		}

		shard := images[start:end]
		err := writeFileAtomic(shardPath, func(w io.Writer) error {
			for _, img := range shard {
				tfExample := example.New(toTFFeatures(img, vocab, imagePath))
				if err := writeTFRecordExample(w, tfExample); err != nil {
					return fmt.Errorf("failed to write example for %q: %w", img.Name, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	Logf("Wrote %d anomalous images to %s", len(images), recordFilePath)
	return nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteLabelMap writes the vocabulary as an object detection label map in prototxt format, with
// the same id shift as WriteAnomalyTFRecord.
func WriteLabelMap(p string, vocab Vocabulary) error {
	return writeFileAtomic(p, func(w io.Writer) error {
		for _, name := range vocab.Names() {
			id, _ := vocab.ID(name)
			if _, err := fmt.Fprintf(w, "item {\n  name: %q\n  id: %d\n}\n", name, id+1); err != nil {
				return err
			}
		}
		return nil
	})
}
