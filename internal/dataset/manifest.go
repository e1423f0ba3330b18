package dataset

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file name of the dataset descriptor under the root.
const ManifestName = "dataset.yaml"

// Manifest is the dataset descriptor consumed by training and evaluation.
type Manifest struct {
	// Path is the absolute dataset root.
	Path string `yaml:"path" json:"path"`

	// Train and Val are image directories relative to Path.
	Train string `yaml:"train" json:"train"`
	Val   string `yaml:"val" json:"val"`

	// Names maps class index to class name.
	Names map[int]string `yaml:"names" json:"names"`
}

// WriteManifest writes m as YAML to path. Map keys are emitted in sorted
// order, so equal manifests produce equal bytes.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest previously written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(path, err)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
