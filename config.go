package lblstats

// Configuration of the dataset layout and the analysis.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// SplitInfo describes a dataset split.
type SplitInfo struct {
	Count    int    `json:"count"`     // The expected number of images, used for progress only.
	FullName string `json:"full_name"` // Shown in status messages.
}

// Config holds the dataset locations, the category vocabulary and the fixed scene value sets.
type Config struct {
	LabelsRoot       string               `json:"labels_root"`
	LabelsPrefix     string               `json:"labels_prefix"`
	ImageRoot        string               `json:"image_root"` // Images are at <root>/<split>/<name>.
	OutputDir        string               `json:"output_dir"`
	DashboardDir     string               `json:"dashboard_dir"`
	Splits           map[string]SplitInfo `json:"splits"`
	Categories       map[string]int       `json:"categories"`
	TimesOfDay       []string             `json:"times_of_day"`
	Weathers         []string             `json:"weathers"`
	ProgressInterval int                  `json:"progress_interval"` // Images between notifications.
}

// DefaultConfig returns the configuration for the BDD100K release layout.
func DefaultConfig() *Config {
	categories := make(map[string]int, len(DefaultCategories))
	for k, v := range DefaultCategories {
		categories[k] = v
	}

	return &Config{
		LabelsRoot:   "/data/bdd100k_labels_release/bdd100k/labels",
		LabelsPrefix: "bdd100k_labels_images_",
		ImageRoot:    "/data/bdd100k_images_100k/bdd100k/images/100k",
		OutputDir:    "csv",
		DashboardDir: "dashboard",
		Splits: map[string]SplitInfo{
			"train": {Count: 69863, FullName: "Training"},
			"val":   {Count: 10000, FullName: "Validation"},
		},
		Categories:       categories,
		TimesOfDay:       []string{"daytime", "dawn/dusk", "night", UndefinedValue},
		Weathers:         []string{"clear", "rainy", UndefinedValue, "snowy", "overcast", "partly cloudy", "foggy"},
		ProgressInterval: 100,
	}
}

// fileConfig mirrors Config with optional fields so that omitted keys keep their defaults.
type fileConfig struct {
	LabelsRoot       *string              `json:"labels_root"`
	LabelsPrefix     *string              `json:"labels_prefix"`
	ImageRoot        *string              `json:"image_root"`
	OutputDir        *string              `json:"output_dir"`
	DashboardDir     *string              `json:"dashboard_dir"`
	Splits           map[string]SplitInfo `json:"splits"`
	Categories       map[string]int       `json:"categories"`
	TimesOfDay       []string             `json:"times_of_day"`
	Weathers         []string             `json:"weathers"`
	ProgressInterval *int                 `json:"progress_interval"`
}

const maxConfigFileSize = 1 << 20

// LoadConfig reads a JSON configuration file. Fields omitted from the file keep their default
// values; maps and lists present in the file replace the defaults entirely.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", cleanPath, err)
	}

	cfg := DefaultConfig()
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&cfg.LabelsRoot, fc.LabelsRoot)
	setString(&cfg.LabelsPrefix, fc.LabelsPrefix)
	setString(&cfg.ImageRoot, fc.ImageRoot)
	setString(&cfg.OutputDir, fc.OutputDir)
	setString(&cfg.DashboardDir, fc.DashboardDir)
	if fc.Splits != nil {
		cfg.Splits = fc.Splits
	}
	if fc.Categories != nil {
		cfg.Categories = fc.Categories
	}
	if fc.TimesOfDay != nil {
		cfg.TimesOfDay = fc.TimesOfDay
	}
	if fc.Weathers != nil {
		cfg.Weathers = fc.Weathers
	}
	if fc.ProgressInterval != nil {
		cfg.ProgressInterval = *fc.ProgressInterval
	}

	return cfg, nil
}

// ApplyEnv overrides paths and settings from LBLSTATS_* environment variables.
func (c *Config) ApplyEnv() {
	c.LabelsRoot = getEnv("LBLSTATS_LABELS_ROOT", c.LabelsRoot)
	c.ImageRoot = getEnv("LBLSTATS_IMAGE_ROOT", c.ImageRoot)
	c.OutputDir = getEnv("LBLSTATS_OUTPUT_DIR", c.OutputDir)
	c.DashboardDir = getEnv("LBLSTATS_DASHBOARD_DIR", c.DashboardDir)
	c.ProgressInterval = getEnvInt("LBLSTATS_PROGRESS_INTERVAL", c.ProgressInterval)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LabelsRoot == "" {
		return fmt.Errorf("missing labels root")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("missing output directory")
	}
	if len(c.Splits) == 0 {
		return fmt.Errorf("no dataset splits configured")
	}
	for name, s := range c.Splits {
		if name == "" {
			return fmt.Errorf("empty split name")
		}
		if s.Count < 0 {
			return fmt.Errorf("split %q has a negative image count", name)
		}
	}
	if _, err := NewVocabulary(c.Categories); err != nil {
		return err
	}
	if len(c.TimesOfDay) == 0 || len(c.Weathers) == 0 {
		return fmt.Errorf("the time of day and weather value sets must not be empty")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("invalid progress interval %d", c.ProgressInterval)
	}
	return nil
}

// Vocabulary returns the configured category vocabulary.
func (c *Config) Vocabulary() (Vocabulary, error) {
	return NewVocabulary(c.Categories)
}

// Split returns the settings for the split name.
func (c *Config) Split(name string) (SplitInfo, error) {
	s, ok := c.Splits[name]
	if !ok {
		return SplitInfo{}, fmt.Errorf("unknown split %q", name)
	}
	if s.FullName == "" {
		s.FullName = name
	}
	return s, nil
}

// SplitNames returns the configured split names, sorted.
func (c *Config) SplitNames() []string {
	names := make([]string, 0, len(c.Splits))
	for k := range c.Splits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LabelFile returns the label file path for split.
func (c *Config) LabelFile(split string) string {
	return LabelFilePath(c.LabelsRoot, c.LabelsPrefix, split)
}

// ImagePath returns the path of the image name in split.
func (c *Config) ImagePath(split, name string) string {
	return filepath.Join(c.ImageRoot, split, filepath.Base(name))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
