package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"GALAXY_CONF", "GALAXY_INPUT_SIZE", "GALAXY_DATASET_DIR", "GALAXY_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Conf != 0.25 || cfg.IoU != 0.45 || cfg.InputSize != 416 {
		t.Errorf("thresholds = %v/%v/%d", cfg.Conf, cfg.IoU, cfg.InputSize)
	}
	if cfg.Debug() {
		t.Error("debug should be off by default")
	}
	if want := filepath.Join("data", "processed", "galaxy", "val", "images"); cfg.ValImages() != want {
		t.Errorf("ValImages = %q, want %q", cfg.ValImages(), want)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GALAXY_CONF", "0.1")
	t.Setenv("GALAXY_INPUT_SIZE", "640")
	t.Setenv("GALAXY_LOG_LEVEL", "DEBUG")
	t.Setenv("GALAXY_IOU", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Conf != 0.1 || cfg.InputSize != 640 {
		t.Errorf("conf/size = %v/%d", cfg.Conf, cfg.InputSize)
	}
	if cfg.IoU != 0.45 {
		t.Errorf("invalid IoU should fall back to default, got %v", cfg.IoU)
	}
	if !cfg.Debug() {
		t.Error("GALAXY_LOG_LEVEL=DEBUG should enable debug")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	// Setenv restores the original value on cleanup; the variable must be
	// absent, not empty, for godotenv to set it.
	t.Setenv("GALAXY_HTTP_ADDR", "")
	os.Unsetenv("GALAXY_HTTP_ADDR")
	t.Setenv("GALAXY_MODEL_PATH", "from-env.onnx")

	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "GALAXY_HTTP_ADDR=0.0.0.0:9000\nGALAXY_MODEL_PATH=from-file.onnx\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("HTTPAddr = %q, want value from .env", cfg.HTTPAddr)
	}
	if cfg.ModelPath != "from-env.onnx" {
		t.Errorf("ModelPath = %q, environment should win over .env", cfg.ModelPath)
	}
}
