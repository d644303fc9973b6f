// Package tdbconfig loads and validates engine configuration, following the
// same layered-precedence idiom as the teacher's own config package:
// hardcoded defaults, then a user config file, then a group-local config
// file, then environment variable overrides.
package tdbconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration. Outside this package, the
// cmd/tdbvs ingest and consolidate commands read IVF.Partitions,
// IVF.AssignWorkers and the KMeans MaxIterations, Tolerance, InitMethod
// and Seed fields (from NewConfig's defaults); no other code reads the
// remaining fields.
type Config struct {
	Version int            `yaml:"version" json:"version"`
	Storage StorageConfig  `yaml:"storage" json:"storage"`
	KMeans  KMeansConfig   `yaml:"kmeans" json:"kmeans"`
	IVF     IVFConfig      `yaml:"ivf" json:"ivf"`
	OOC     OutOfCoreConfig `yaml:"out_of_core" json:"out_of_core"`
	Logging LoggingConfig  `yaml:"logging" json:"logging"`
}

// StorageConfig controls the local storage backend.
type StorageConfig struct {
	// Root is the directory (or sqlite file) groups are stored under.
	Root string `yaml:"root" json:"root"`
	// FragmentCompression names the codec for dense fragment blobs
	// ("zstd" or "none"); internal/storage does not read it and always
	// compresses with zstd.
	FragmentCompression string `yaml:"fragment_compression" json:"fragment_compression"`
	// ZstdLevel is the compression level used when FragmentCompression is "zstd".
	ZstdLevel int `yaml:"zstd_level" json:"zstd_level"`
	// SQLiteCacheMB is a sqlite page cache size in MB; storage.OpenStore
	// does not apply it.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// KMeansConfig controls the training stage of ingestion.
type KMeansConfig struct {
	// MaxIterations bounds Lloyd's algorithm.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// NumInit is a count of k-means seedings; training runs a single
	// seeding and does not read it.
	NumInit int `yaml:"num_init" json:"num_init"`
	// SampleFraction and SampleThreshold describe a fraction-based training
	// sample; ingestion does not read them and sizes its sample with
	// ingest.TrainingSampleSize instead.
	SampleFraction float64 `yaml:"sample_fraction" json:"sample_fraction"`
	// SampleThreshold is the vector count paired with SampleFraction.
	SampleThreshold int `yaml:"sample_threshold" json:"sample_threshold"`
	// Seed makes training reproducible when non-zero.
	Seed int64 `yaml:"seed" json:"seed"`
	// InitMethod selects Lloyd's-algorithm seeding: "kmeans++" or "random".
	InitMethod string `yaml:"init_method" json:"init_method"`
	// Tolerance is the centroid-movement convergence threshold (squared-L2,
	// averaged across centroids) below which training stops early.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

// IVFConfig controls IVF-Flat partitioning and query defaults.
type IVFConfig struct {
	// Partitions is the default partition count (often denoted P) used
	// when the caller does not specify one at ingest time.
	Partitions int `yaml:"partitions" json:"partitions"`
	// NProbe is the default number of partitions probed at query time.
	NProbe int `yaml:"nprobe" json:"nprobe"`
	// AssignWorkers bounds parallel nearest-centroid assignment workers.
	AssignWorkers int `yaml:"assign_workers" json:"assign_workers"`
}

// OutOfCoreConfig bounds resident partition memory for IVF queries that
// cannot load every probed partition at once.
type OutOfCoreConfig struct {
	// MemoryBudgetBytes caps the bytes of partition data resident at once.
	// Zero means "infinite RAM": load every probed partition up front.
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`
	// PartitionCacheEntries bounds the LRU cache of decoded partitions kept
	// warm across queries against the same group.
	PartitionCacheEntries int `yaml:"partition_cache_entries" json:"partition_cache_entries"`
}

// LoggingConfig mirrors tdblog.Config so it can be embedded in the
// top-level YAML document.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config populated with defaults appropriate for a
// single-machine deployment.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Root:                 "./data",
			FragmentCompression: "zstd",
			ZstdLevel:            3,
			SQLiteCacheMB:        64,
		},
		KMeans: KMeansConfig{
			MaxIterations:   25,
			NumInit:         1,
			SampleFraction:  1.0,
			SampleThreshold: 1_000_000,
			Seed:            0,
			InitMethod:      "kmeans++",
			Tolerance:       1e-4,
		},
		IVF: IVFConfig{
			Partitions:    100,
			NProbe:        8,
			AssignWorkers: runtime.NumCPU(),
		},
		OOC: OutOfCoreConfig{
			MemoryBudgetBytes:     0,
			PartitionCacheEntries: 64,
		},
		Logging: LoggingConfig{
			Level:     "info",
			FilePath:  filepath.Join("logs", "tdbvs.log"),
			MaxSizeMB: 50,
			MaxFiles:  10,
		},
	}
}

// Load reads configuration from dir in order of increasing precedence:
//  1. hardcoded defaults
//  2. user/global config (~/.config/tdbvs/config.yaml)
//  3. group-local config (.tdbvs.yaml in dir)
//  4. environment variables (TDBVS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".tdbvs.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".tdbvs.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Storage.Root != "" {
		c.Storage.Root = other.Storage.Root
	}
	if other.Storage.FragmentCompression != "" {
		c.Storage.FragmentCompression = other.Storage.FragmentCompression
	}
	if other.Storage.ZstdLevel != 0 {
		c.Storage.ZstdLevel = other.Storage.ZstdLevel
	}
	if other.Storage.SQLiteCacheMB != 0 {
		c.Storage.SQLiteCacheMB = other.Storage.SQLiteCacheMB
	}

	if other.KMeans.MaxIterations != 0 {
		c.KMeans.MaxIterations = other.KMeans.MaxIterations
	}
	if other.KMeans.NumInit != 0 {
		c.KMeans.NumInit = other.KMeans.NumInit
	}
	if other.KMeans.SampleFraction != 0 {
		c.KMeans.SampleFraction = other.KMeans.SampleFraction
	}
	if other.KMeans.SampleThreshold != 0 {
		c.KMeans.SampleThreshold = other.KMeans.SampleThreshold
	}
	if other.KMeans.Seed != 0 {
		c.KMeans.Seed = other.KMeans.Seed
	}
	if other.KMeans.InitMethod != "" {
		c.KMeans.InitMethod = other.KMeans.InitMethod
	}
	if other.KMeans.Tolerance != 0 {
		c.KMeans.Tolerance = other.KMeans.Tolerance
	}

	if other.IVF.Partitions != 0 {
		c.IVF.Partitions = other.IVF.Partitions
	}
	if other.IVF.NProbe != 0 {
		c.IVF.NProbe = other.IVF.NProbe
	}
	if other.IVF.AssignWorkers != 0 {
		c.IVF.AssignWorkers = other.IVF.AssignWorkers
	}

	if other.OOC.MemoryBudgetBytes != 0 {
		c.OOC.MemoryBudgetBytes = other.OOC.MemoryBudgetBytes
	}
	if other.OOC.PartitionCacheEntries != 0 {
		c.OOC.PartitionCacheEntries = other.OOC.PartitionCacheEntries
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies TDBVS_* environment variable overrides, taking
// highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TDBVS_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("TDBVS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TDBVS_IVF_NPROBE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.IVF.NProbe = n
		}
	}
	if v := os.Getenv("TDBVS_IVF_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.IVF.Partitions = n
		}
	}
	if v := os.Getenv("TDBVS_OOC_MEMORY_BUDGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.OOC.MemoryBudgetBytes = n
		}
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.IVF.NProbe <= 0 {
		return fmt.Errorf("ivf.nprobe must be positive, got %d", c.IVF.NProbe)
	}
	if c.IVF.Partitions <= 0 {
		return fmt.Errorf("ivf.partitions must be positive, got %d", c.IVF.Partitions)
	}
	if c.KMeans.SampleFraction <= 0 || c.KMeans.SampleFraction > 1 {
		return fmt.Errorf("kmeans.sample_fraction must be in (0, 1], got %f", c.KMeans.SampleFraction)
	}
	if c.OOC.MemoryBudgetBytes < 0 {
		return fmt.Errorf("out_of_core.memory_budget_bytes must be non-negative, got %d", c.OOC.MemoryBudgetBytes)
	}

	validInit := map[string]bool{"kmeans++": true, "random": true}
	if !validInit[strings.ToLower(c.KMeans.InitMethod)] {
		return fmt.Errorf("kmeans.init_method must be 'kmeans++' or 'random', got %s", c.KMeans.InitMethod)
	}

	validCompression := map[string]bool{"zstd": true, "none": true}
	if !validCompression[strings.ToLower(c.Storage.FragmentCompression)] {
		return fmt.Errorf("storage.fragment_compression must be 'zstd' or 'none', got %s", c.Storage.FragmentCompression)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// GetUserConfigPath returns the user/global configuration path, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tdbvs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "tdbvs", "config.yaml")
	}
	return filepath.Join(home, ".config", "tdbvs", "config.yaml")
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
