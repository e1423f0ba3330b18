// Package config loads galaxy-tools settings from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ModelPath   string
	OrtLibrary  string
	InputSize   int
	Conf        float64
	IoU         float64
	ArchivePath string
	LabelsCSV   string
	DatasetDir  string
	OutputDir   string
	HistoryDB   string
	HTTPAddr    string
	LogLevel    string
}

// Load reads .env files (missing ones are ignored) and then the
// environment. Variables already set win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Config{
		ModelPath:   getEnv("GALAXY_MODEL_PATH", filepath.Join("models", "galaxy_model.onnx")),
		OrtLibrary:  getEnv("GALAXY_ORT_LIBRARY", ""),
		InputSize:   getEnvAsInt("GALAXY_INPUT_SIZE", 416),
		Conf:        getEnvAsFloat("GALAXY_CONF", 0.25),
		IoU:         getEnvAsFloat("GALAXY_IOU", 0.45),
		ArchivePath: getEnv("GALAXY_ARCHIVE", filepath.Join("data", "raw", "images_training_rev1.zip")),
		LabelsCSV:   getEnv("GALAXY_LABELS_CSV", filepath.Join("data", "raw", "training_solutions_rev1.csv")),
		DatasetDir:  getEnv("GALAXY_DATASET_DIR", filepath.Join("data", "processed", "galaxy")),
		OutputDir:   getEnv("GALAXY_OUTPUT_DIR", filepath.Join("outputs", "predictions")),
		HistoryDB:   getEnv("GALAXY_HISTORY_DB", filepath.Join("outputs", "history.db")),
		HTTPAddr:    getEnv("GALAXY_HTTP_ADDR", "127.0.0.1:5001"),
		LogLevel:    strings.ToLower(getEnv("GALAXY_LOG_LEVEL", "info")),
	}, nil
}

// ValImages is the validation image directory of the dataset.
func (c *Config) ValImages() string {
	return filepath.Join(c.DatasetDir, "val", "images")
}

// ValLabels is the validation label directory of the dataset.
func (c *Config) ValLabels() string {
	return filepath.Join(c.DatasetDir, "val", "labels")
}

// Debug reports whether debug logging was requested.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
