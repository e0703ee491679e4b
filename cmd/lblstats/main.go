// Computes label statistics for the splits of a BDD100K style dataset, renders an HTML dashboard
// over them and exports the flagged labels for review.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sensorable/lblstats"
)

var (
	configFilePath string   // The JSON configuration file.
	splits         []string // The splits to process.
	forceReprocess bool     // Recompute splits that already have a report.

	renderDashboard bool   // Render the dashboard pages after processing.
	serveAddr       string // Serve the dashboard on this address after processing.

	tfRecordOutPath     string // The anomaly TFRecord output file.
	labelMapOutPath     string // The label map for the anomaly TFRecord.
	numShardFiles       int    // The number of TFRecord shard files to create.
	embedTFRecordImages bool   // Embed the images in the anomaly TFRecord.
	viaOutPath          string // The anomaly VIA project output file.
	annotatedOutDir     string // The output directory for annotated anomaly images.
	topImages           int    // The number of annotated images per anomaly kind and split.
	imageMaxWidth       int    // The max. width of annotated images.
	imageJPEGQuality    int    // The JPEG quality for annotated images.

	cfg *lblstats.Config
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  statistics:\t\t[-config <file>] [-labels <dir>] [-out <dir>] [-splits train,val] [-force]")
		_, _ = fmt.Fprintln(os.Stderr, "  dashboard:\t\t-dashboard [-dashboard-dir <dir>] [-serve :8080]")
		_, _ = fmt.Fprintln(os.Stderr, "  anomaly exports:\t[-tfrecord-out <file> [-label-map-out <file>]] [-via-out <file>]"+
			" [-annotated-out <dir> -images <dir> -top n]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Configuration arguments.
	flag.StringVar(&configFilePath, "config", configFilePath,
		"The JSON configuration file `path` (defaults apply to omitted settings)")
	labelsRoot := flag.String("labels", "", "The `path` to the label directory (overrides the configuration)")
	outDir := flag.String("out", "", "The `path` to the statistics output directory (overrides the configuration)")
	imageRoot := flag.String("images", "", "The `path` to the image root directory (overrides the configuration)")
	dashboardDir := flag.String("dashboard-dir", "", "The `path` to the dashboard output directory"+
		" (overrides the configuration)")
	splitList := flag.String("splits", "", "The comma-separated `splits` to process (empty processes all configured splits)")
	flag.BoolVar(&forceReprocess, "force", forceReprocess, "Recompute splits that already have a complete report")

	// Dashboard arguments.
	flag.BoolVar(&renderDashboard, "dashboard", renderDashboard, "Render the dashboard after processing")
	flag.StringVar(&serveAddr, "serve", serveAddr, "Serve the dashboard and the query API on this `address`")

	// Export arguments.
	flag.StringVar(&tfRecordOutPath, "tfrecord-out", tfRecordOutPath, "The anomaly TFRecord output file `path`")
	flag.StringVar(&labelMapOutPath, "label-map-out", labelMapOutPath, "The label map output file `path` (tfrecord only)")
	flag.IntVar(&numShardFiles, "num-shards", 1, "The number of shard files to create (tfrecord only)")
	flag.BoolVar(&embedTFRecordImages, "tfrecord-images", embedTFRecordImages, "Embed the images in the anomaly TFRecord")
	flag.StringVar(&viaOutPath, "via-out", viaOutPath, "The anomaly VGG Image Annotator project file `path`")
	flag.StringVar(&annotatedOutDir, "annotated-out", annotatedOutDir,
		"The `path` to the output directory for annotated anomaly images")
	flag.IntVar(&topImages, "top", 10, "The number of annotated images per anomaly kind and split")
	flag.IntVar(&imageMaxWidth, "max-width", 0, "The max. `width` of annotated images (zero keeps the size)")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90, "The quality to use when encoding JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	var err error
	if configFilePath != "" {
		if cfg, err = lblstats.LoadConfig(configFilePath); err != nil {
			printUsageAndExit("Invalid configuration: ", err)
		}
	} else {
		cfg = lblstats.DefaultConfig()
	}
	cfg.ApplyEnv()

	if *labelsRoot != "" {
		cfg.LabelsRoot = filepath.Clean(*labelsRoot)
	}
	if *outDir != "" {
		cfg.OutputDir = filepath.Clean(*outDir)
	}
	if *imageRoot != "" {
		cfg.ImageRoot = filepath.Clean(*imageRoot)
	}
	if *dashboardDir != "" {
		cfg.DashboardDir = filepath.Clean(*dashboardDir)
	}
	if err := cfg.Validate(); err != nil {
		printUsageAndExit("Invalid configuration: ", err)
	}

	if *splitList == "" {
		splits = cfg.SplitNames()
	} else {
		for _, s := range strings.Split(*splitList, ",") {
			if _, err := cfg.Split(s); err != nil {
				printUsageAndExit(err)
			}
			splits = append(splits, s)
		}
	}

	if annotatedOutDir != "" && topImages <= 0 {
		printUsageAndExit("Invalid value for -top: ", topImages)
	}
	if labelMapOutPath != "" && tfRecordOutPath == "" {
		printUsageAndExit("Argument -label-map-out requires -tfrecord-out")
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 90
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}
	if cfg.DashboardDir == cfg.OutputDir && renderDashboard {
		printUsageAndExit("The statistics and dashboard directories cannot be identical")
	}
}

func main() {
	analyzer, err := lblstats.NewAnalyzer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Compute and save the statistics.
	err = analyzer.ProcessSplits(splits, forceReprocess, func(string) lblstats.Progress {
		return &lblstats.LogProgress{}
	})
	if err != nil {
		log.Fatal("Failed to compute the statistics: ", err)
	}

	// Collect the anomalies of all processed splits for the exports.
	var anomalies []lblstats.AnomalyEntry
	perSplit := make(map[string][]lblstats.AnomalyEntry, len(splits))
	if tfRecordOutPath != "" || viaOutPath != "" || annotatedOutDir != "" {
		for _, split := range splits {
			a, err := lblstats.ReadAnomalies(cfg.OutputDir, split)
			if err != nil {
				log.Fatal("Failed to read the anomalies: ", err)
			}
			perSplit[split] = a
			anomalies = append(anomalies, a...)
		}
	}

	if tfRecordOutPath != "" {
		vocab, err := cfg.Vocabulary()
		if err != nil {
			log.Fatal(err)
		}
		var imagePath func(split, name string) string
		if embedTFRecordImages {
			imagePath = cfg.ImagePath
		}
		if err := lblstats.WriteAnomalyTFRecord(tfRecordOutPath, anomalies, vocab, imagePath, numShardFiles); err != nil {
			log.Fatal("Failed to write the anomaly TFRecord: ", err)
		}
		if labelMapOutPath != "" {
			if err := lblstats.WriteLabelMap(labelMapOutPath, vocab); err != nil {
				log.Fatal("Failed to write the label map: ", err)
			}
		}
	}

	if viaOutPath != "" {
		if err := lblstats.WriteVIA(viaOutPath, lblstats.ToVIA(anomalies)); err != nil {
			log.Fatal("Failed to write the VIA project: ", err)
		}
		log.Printf("Successfully wrote %d anomalies to %s", len(anomalies), viaOutPath)
	}

	if annotatedOutDir != "" {
		for _, split := range splits {
			written, err := lblstats.SaveAnnotatedAnomalies(cfg, split, perSplit[split], topImages,
				annotatedOutDir, imageMaxWidth, imageJPEGQuality)
			if err != nil {
				log.Fatal("Failed to save the annotated images: ", err)
			}
			log.Printf("Saved %d annotated images for split %q to %s", len(written), split, annotatedOutDir)
		}
	}

	if renderDashboard {
		if _, err := lblstats.RenderDashboard(cfg, splits); err != nil {
			log.Fatal("Failed to render the dashboard: ", err)
		}
	}

	if serveAddr != "" {
		srv, err := lblstats.NewServer(cfg)
		if err != nil {
			log.Fatal(err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.ListenAndServe(ctx, serveAddr); err != nil {
			log.Fatal("Server failed: ", err)
		}
	}
}
