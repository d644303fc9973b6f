package tdbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesGroupLocalFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
ivf:
  nprobe: 32
  partitions: 256
storage:
  root: /data/groups
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tdbvs.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.IVF.NProbe)
	assert.Equal(t, 256, cfg.IVF.Partitions)
	assert.Equal(t, "/data/groups", cfg.Storage.Root)
	// untouched fields keep defaults
	assert.Equal(t, "zstd", cfg.Storage.FragmentCompression)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TDBVS_IVF_NPROBE", "64")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.IVF.NProbe)
}

func TestValidate_RejectsBadNProbe(t *testing.T) {
	cfg := NewConfig()
	cfg.IVF.NProbe = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadSampleFraction(t *testing.T) {
	cfg := NewConfig()
	cfg.KMeans.SampleFraction = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownCompression(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.FragmentCompression = "lz4"
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.IVF.NProbe = 12
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 12, loaded.IVF.NProbe)
}
