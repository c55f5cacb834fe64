// Package config loads the YAML configuration shared by the trainer, the
// predictor and the upload server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"petclassifier/db"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "config.yaml"

// DefaultDatasetURL is the Microsoft Cats and Dogs archive.
const DefaultDatasetURL = "https://download.microsoft.com/download/3/E/1/3E1C3F21-ECDB-4869-8368-6DEBA77B919F/kagglecatsanddogs_5340.zip"

type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	ML       MLConfig       `yaml:"ml"`
	Database DatabaseConfig `yaml:"database"`
	Http     HttpConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
}

type DatasetConfig struct {
	URL           string `yaml:"url"`
	ArchivePath   string `yaml:"archive_path"`
	RawDir        string `yaml:"raw_dir"`
	OutputDir     string `yaml:"output_dir"`
	PerClassLimit int    `yaml:"per_class_limit"`
}

type MLConfig struct {
	ModelPath   string  `yaml:"model_path"`
	ImageWidth  int     `yaml:"image_width"`
	ImageHeight int     `yaml:"image_height"`
	NumTrees    int     `yaml:"num_trees"`
	Seed        int64   `yaml:"seed"`
	TestRatio   float64 `yaml:"test_ratio"`
	MaxDepth    int     `yaml:"max_depth"`
	Workers     int     `yaml:"workers"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type HttpConfig struct {
	Port        int           `yaml:"port"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`
	MaxUploadMB int64         `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StorageConfig points at an S3-compatible bucket. Publishing is disabled
// while Endpoint or Bucket is empty.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether artifact publishing is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Default returns the settings the original pipeline hard-coded.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			URL:           DefaultDatasetURL,
			ArchivePath:   "cats_and_dogs.zip",
			RawDir:        "dataset_raw",
			OutputDir:     "dataset",
			PerClassLimit: 1000,
		},
		ML: MLConfig{
			ModelPath:   "cat_dog_classifier.pkl",
			ImageWidth:  64,
			ImageHeight: 64,
			NumTrees:    200,
			Seed:        42,
			TestRatio:   0.2,
		},
		Database: DatabaseConfig{Path: db.DefaultPath},
		Http: HttpConfig{
			Port:        3000,
			Timeout:     30 * time.Second,
			CacheSize:   256,
			MaxUploadMB: 10,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path on top of Default. A missing file is not an error.
// Values from .env and PETCLF_* environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ML.ImageWidth <= 0 || c.ML.ImageHeight <= 0 {
		return fmt.Errorf("invalid image size %dx%d", c.ML.ImageWidth, c.ML.ImageHeight)
	}
	if c.ML.NumTrees <= 0 {
		return errors.New("num_trees must be positive")
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("test_ratio must be in (0, 1), got %v", c.ML.TestRatio)
	}
	if c.Dataset.PerClassLimit <= 0 {
		return errors.New("per_class_limit must be positive")
	}
	if c.ML.ModelPath == "" {
		return errors.New("model_path is required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Dataset.URL = getEnv("PETCLF_DATASET_URL", cfg.Dataset.URL)
	cfg.Dataset.PerClassLimit = getEnvAsInt("PETCLF_PER_CLASS_LIMIT", cfg.Dataset.PerClassLimit)
	cfg.ML.ModelPath = getEnv("PETCLF_MODEL_PATH", cfg.ML.ModelPath)
	cfg.ML.NumTrees = getEnvAsInt("PETCLF_NUM_TREES", cfg.ML.NumTrees)
	cfg.ML.Workers = getEnvAsInt("PETCLF_WORKERS", cfg.ML.Workers)
	cfg.Database.Path = getEnv("PETCLF_DB_PATH", cfg.Database.Path)
	cfg.Http.Port = getEnvAsInt("PORT", cfg.Http.Port)
	cfg.Log.Level = getEnv("PETCLF_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("PETCLF_LOG_FILE", cfg.Log.File)
	cfg.Storage.Endpoint = getEnv("PETCLF_S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = getEnv("PETCLF_S3_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("PETCLF_S3_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = getEnv("PETCLF_S3_BUCKET", cfg.Storage.Bucket)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
