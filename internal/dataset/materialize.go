package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ironsheep/galaxy-tools/internal/monitoring"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// PlaceholderBox is the normalized "cx cy w h" box written for every image.
const PlaceholderBox = "0.5 0.5 0.6 0.6"

// Defaults used when the corresponding Options field is zero.
const (
	DefaultArchiveSubdir = "images_training_rev1"
	DefaultExtractDir    = "galaxy_data"
	DefaultValSplit      = 0.2
	DefaultSeed          = 42
)

// Options configures Materialize.
type Options struct {
	// ArchivePath is the zip of <id>.jpg images.
	ArchivePath string `json:"archive_path"`

	// LabelsPath is the survey CSV keyed by IDColumn.
	LabelsPath string `json:"labels_path"`
	IDColumn   string `json:"id_column,omitempty"`

	// OutputRoot receives train/, val/ and dataset.yaml. It is wiped first.
	OutputRoot string `json:"output_root"`

	// SampleSize caps the number of records used; 0 uses all of them.
	SampleSize int `json:"sample_size"`

	// ValSplit is the validation fraction, strictly between 0 and 1.
	ValSplit float64 `json:"val_split"`
	Seed     int64   `json:"seed"`

	// ExtractDir is where the archive is unpacked. Defaults to a
	// "galaxy_data" sibling of OutputRoot. It must not lie inside OutputRoot.
	ExtractDir string `json:"extract_dir,omitempty"`

	// ArchiveSubdir is the directory inside the archive holding the images.
	// Archives without it are read from their root.
	ArchiveSubdir string `json:"archive_subdir,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.IDColumn == "" {
		o.IDColumn = DefaultIDColumn
	}
	if o.ExtractDir == "" {
		o.ExtractDir = filepath.Join(filepath.Dir(filepath.Clean(o.OutputRoot)), DefaultExtractDir)
	}
	if o.ArchiveSubdir == "" {
		o.ArchiveSubdir = DefaultArchiveSubdir
	}
	return o
}

func (o Options) validate() error {
	if o.ValSplit <= 0 || o.ValSplit >= 1 {
		return fmt.Errorf("validation split must be in (0,1), got %v", o.ValSplit)
	}
	if o.SampleSize < 0 {
		return fmt.Errorf("sample size must not be negative, got %d", o.SampleSize)
	}
	root := filepath.Clean(o.OutputRoot)
	if o.OutputRoot == "" || root == "." || root == filepath.Dir(root) {
		return fmt.Errorf("refusing to use %q as output root", o.OutputRoot)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve output root: %w", err)
	}
	absExtract, err := filepath.Abs(o.ExtractDir)
	if err != nil {
		return fmt.Errorf("failed to resolve extract directory: %w", err)
	}
	if within(absExtract, absRoot) {
		return fmt.Errorf("extract directory %s lies inside output root %s", o.ExtractDir, root)
	}
	return nil
}

// Result describes a materialized dataset.
type Result struct {
	ManifestPath string `json:"manifest_path"`
	OutputRoot   string `json:"output_root"`

	// TrainIDs and ValIDs are the planned split membership, including
	// records whose image was missing.
	TrainIDs []string `json:"train_ids"`
	ValIDs   []string `json:"val_ids"`

	// TrainCount and ValCount are the images actually written.
	TrainCount int `json:"train_count"`
	ValCount   int `json:"val_count"`

	// Skipped counts planned records with no image in the archive.
	Skipped int `json:"skipped"`
}

// Materialize builds the dataset described by opts.
//
// Every planned record is classified before the output tree is touched, so
// an invalid record leaves a previous dataset in place. The output root is
// then removed and recreated, images are copied split by split, and the
// manifest is written last. If ctx is cancelled while copying, the partly
// written output root is removed before ctx.Err() is returned.
func Materialize(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(opts.LabelsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(opts.LabelsPath, err)
		}
		return nil, fmt.Errorf("failed to stat label table: %w", err)
	}

	imagesDir, _, err := Extract(opts.ArchivePath, opts.ExtractDir, opts.ArchiveSubdir)
	if err != nil {
		return nil, err
	}

	records, err := LoadTable(opts.LabelsPath, opts.IDColumn)
	if err != nil {
		return nil, err
	}

	plan := PlanSplit(records, opts.SampleSize, opts.ValSplit, opts.Seed)

	classes := make(map[string]morphology.Class, len(plan.Train)+len(plan.Val))
	for _, split := range Splits {
		for _, rec := range plan.Records(split) {
			c, err := morphology.Classify(rec)
			if err != nil {
				return nil, &Error{Kind: ErrRecordInvalid, Path: opts.LabelsPath, Err: err}
			}
			classes[rec.ID] = c
		}
	}

	root, err := filepath.Abs(opts.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}
	if err := resetLayout(root); err != nil {
		return nil, err
	}

	res := &Result{
		OutputRoot:   root,
		ManifestPath: filepath.Join(root, ManifestName),
		TrainIDs:     ids(plan.Train),
		ValIDs:       ids(plan.Val),
	}

	for _, split := range Splits {
		written := 0
		for _, rec := range plan.Records(split) {
			if err := ctx.Err(); err != nil {
				if rmErr := os.RemoveAll(root); rmErr != nil {
					monitoring.Logf("failed to remove partial dataset %s: %v", root, rmErr)
				}
				return nil, err
			}
			ok, err := writeEntry(imagesDir, root, split, rec.ID, classes[rec.ID])
			if err != nil {
				return nil, err
			}
			if !ok {
				res.Skipped++
				continue
			}
			written++
		}
		if split == Train {
			res.TrainCount = written
		} else {
			res.ValCount = written
		}
	}

	manifest := &Manifest{
		Path:  root,
		Train: string(Train) + "/images",
		Val:   string(Validation) + "/images",
		Names: morphology.Names(),
	}
	if err := WriteManifest(res.ManifestPath, manifest); err != nil {
		return nil, err
	}

	monitoring.Logf("Dataset ready in %s (%d train / %d val images, val split=%v)",
		root, res.TrainCount, res.ValCount, opts.ValSplit)
	if res.Skipped > 0 {
		monitoring.Logf("Skipped %d records with no image in %s", res.Skipped, imagesDir)
	}
	return res, nil
}

// resetLayout removes root and recreates the split directories.
func resetLayout(root string) error {
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to clear output root: %w", err)
	}
	for _, split := range Splits {
		for _, sub := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(root, string(split), sub), 0755); err != nil {
				return fmt.Errorf("failed to create %s/%s: %w", split, sub, err)
			}
		}
	}
	return nil
}

// writeEntry copies one image and writes its label. It returns false when
// the source image does not exist.
func writeEntry(imagesDir, root string, split Split, id string, class morphology.Class) (bool, error) {
	name := id + ".jpg"
	src := filepath.Join(imagesDir, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			monitoring.Debugf("no image for record %s", id)
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := copyFile(src, filepath.Join(root, string(split), "images", name)); err != nil {
		return false, err
	}

	label := fmt.Sprintf("%d %s\n", int(class), PlaceholderBox)
	labelPath := filepath.Join(root, string(split), "labels", id+".txt")
	if err := os.WriteFile(labelPath, []byte(label), 0644); err != nil {
		return false, fmt.Errorf("failed to write label %s: %w", labelPath, err)
	}
	return true, nil
}

// copyFile copies src to dst byte for byte and keeps the modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func ids(records []morphology.SurveyRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
