package lblstats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"train", "val"}, cfg.SplitNames())
	assert.Len(t, cfg.TimesOfDay, 4)
	assert.Len(t, cfg.Weathers, 7)
	assert.Equal(t, 100, cfg.ProgressInterval)
	assert.Equal(t, "/data/bdd100k_labels_release/bdd100k/labels/bdd100k_labels_images_train.json",
		cfg.LabelFile("train"))
	assert.Equal(t, "/data/bdd100k_images_100k/bdd100k/images/100k/val/b1c66a42-6f7d68ca.jpg",
		cfg.ImagePath("val", "b1c66a42-6f7d68ca.jpg"))

	// The category map is a copy of the defaults.
	cfg.Categories["lane"] = 10
	assert.NotContains(t, DefaultCategories, "lane")
}

func TestConfigSplit(t *testing.T) {
	cfg := DefaultConfig()
	info, err := cfg.Split("train")
	require.NoError(t, err)
	assert.Equal(t, SplitInfo{Count: 69863, FullName: "Training"}, info)

	cfg.Splits["test"] = SplitInfo{Count: 20000}
	info, err = cfg.Split("test")
	require.NoError(t, err)
	assert.Equal(t, "test", info.FullName)

	_, err = cfg.Split("holdout")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lblstats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"labels_root": "/mnt/labels",
		"output_dir": "out",
		"splits": {"test": {"count": 20000, "full_name": "Test"}},
		"progress_interval": 500
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/mnt/labels", cfg.LabelsRoot)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, []string{"test"}, cfg.SplitNames())
	assert.Equal(t, 500, cfg.ProgressInterval)

	// Omitted settings keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.LabelsPrefix, cfg.LabelsPrefix)
	assert.Equal(t, def.ImageRoot, cfg.ImageRoot)
	assert.Equal(t, def.Categories, cfg.Categories)
	assert.Equal(t, def.Weathers, cfg.Weathers)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	assert.ErrorContains(t, err, ".json")

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"splits": [1, 2]}`), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"no labels root":     func(c *Config) { c.LabelsRoot = "" },
		"no output dir":      func(c *Config) { c.OutputDir = "" },
		"no splits":          func(c *Config) { c.Splits = nil },
		"negative count":     func(c *Config) { c.Splits["val"] = SplitInfo{Count: -1} },
		"duplicate ids":      func(c *Config) { c.Categories["lane"] = 2 },
		"no weathers":        func(c *Config) { c.Weathers = nil },
		"zero progress step": func(c *Config) { c.ProgressInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("LBLSTATS_LABELS_ROOT", "/env/labels")
	t.Setenv("LBLSTATS_OUTPUT_DIR", "/env/out")
	t.Setenv("LBLSTATS_PROGRESS_INTERVAL", "250")
	t.Setenv("LBLSTATS_DASHBOARD_DIR", "")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "/env/labels", cfg.LabelsRoot)
	assert.Equal(t, "/env/out", cfg.OutputDir)
	assert.Equal(t, 250, cfg.ProgressInterval)
	assert.Equal(t, "", cfg.DashboardDir)
	assert.Equal(t, DefaultConfig().ImageRoot, cfg.ImageRoot)

	t.Setenv("LBLSTATS_PROGRESS_INTERVAL", "often")
	cfg = DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, 100, cfg.ProgressInterval)
}
