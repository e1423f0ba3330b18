package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

const csvHeader = "GalaxyID,Class1.1,Class1.2,Class1.3,Class2.1,Class2.2,Class3.1,Class4.1\n"

// row renders one CSV line: smooth, disk, artifact, edge-on, bar, spiral.
func row(id int, smooth, disk, artifact, edgeOn, bar, spiral float64) string {
	return fmt.Sprintf("%d,%v,%v,%v,%v,0.1,%v,%v\n", id, smooth, disk, artifact, edgeOn, bar, spiral)
}

// fixture holds the inputs of one materialization run under a temp dir.
type fixture struct {
	dir     string
	archive string
	labels  string
	out     string
}

// newFixture writes an archive holding images for imageIDs and a CSV with rows.
func newFixture(t *testing.T, imageIDs []int, rows ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		archive: filepath.Join(dir, "raw", "images_training_rev1.zip"),
		labels:  filepath.Join(dir, "raw", "training_solutions_rev1.csv"),
		out:     filepath.Join(dir, "processed", "galaxy_expert"),
	}
	if err := os.MkdirAll(filepath.Dir(f.archive), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeArchive(t, f.archive, imageIDs)
	writeLabels(t, f.labels, rows...)
	return f
}

func writeArchive(t *testing.T, path string, imageIDs []int) {
	t.Helper()
	writeArchiveIn(t, path, DefaultArchiveSubdir, imageIDs)
}

// writeArchiveIn stores the images under subdir, or at the root when subdir
// is empty.
func writeArchiveIn(t *testing.T, path, subdir string, imageIDs []int) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if subdir != "" {
		if _, err := zw.Create(subdir + "/"); err != nil {
			t.Fatalf("zip dir: %v", err)
		}
	}
	for _, id := range imageIDs {
		name := fmt.Sprintf("%d.jpg", id)
		if subdir != "" {
			name = subdir + "/" + name
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		fmt.Fprintf(w, "jpeg-bytes-%d", id)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func writeLabels(t *testing.T, path string, rows ...string) {
	t.Helper()
	content := csvHeader + strings.Join(rows, "")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write labels: %v", err)
	}
}

func (f *fixture) options() Options {
	return Options{
		ArchivePath: f.archive,
		LabelsPath:  f.labels,
		OutputRoot:  f.out,
		ValSplit:    0.2,
		Seed:        42,
	}
}

func listStems(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	var stems []string
	for _, e := range entries {
		stems = append(stems, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(stems)
	return stems
}

func tenRows() []string {
	var rows []string
	for i := 0; i < 10; i++ {
		id := 100000 + i
		switch i % 4 {
		case 0:
			rows = append(rows, row(id, 0.8, 0.1, 0.1, 0.1, 0.1, 0.1))
		case 1:
			rows = append(rows, row(id, 0.2, 0.7, 0.1, 0.1, 0.1, 0.6))
		case 2:
			rows = append(rows, row(id, 0.1, 0.2, 0.1, 0.7, 0.1, 0.1))
		default:
			rows = append(rows, row(id, 0.1, 0.1, 0.6, 0.1, 0.1, 0.1))
		}
	}
	return rows
}

func TestMaterialize_Layout(t *testing.T) {
	ids := []int{100000, 100001, 100002, 100003, 100004, 100005, 100006, 100007}
	f := newFixture(t, ids, tenRows()...)

	res, err := Materialize(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	if len(res.TrainIDs) != 8 || len(res.ValIDs) != 2 {
		t.Fatalf("split sizes = %d/%d, want 8/2", len(res.TrainIDs), len(res.ValIDs))
	}
	if got := res.TrainCount + res.ValCount; got != 8 {
		t.Errorf("processed %d images, want 8", got)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}

	records, err := LoadTable(f.labels, "")
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	byID := make(map[string]morphology.SurveyRecord)
	for _, r := range records {
		byID[r.ID] = r
	}

	for _, split := range Splits {
		imgDir := filepath.Join(res.OutputRoot, string(split), "images")
		lblDir := filepath.Join(res.OutputRoot, string(split), "labels")
		images := listStems(t, imgDir)
		if diff := cmp.Diff(images, listStems(t, lblDir)); diff != "" {
			t.Errorf("%s images and labels differ (-images +labels):\n%s", split, diff)
		}
		for _, id := range images {
			data, err := os.ReadFile(filepath.Join(lblDir, id+".txt"))
			if err != nil {
				t.Fatalf("read label: %v", err)
			}
			want, err := morphology.Classify(byID[id])
			if err != nil {
				t.Fatalf("Classify(%s): %v", id, err)
			}
			if got := string(data); got != fmt.Sprintf("%d 0.5 0.5 0.6 0.6\n", want) {
				t.Errorf("label %s = %q, want class %d", id, got, want)
			}

			img, err := os.ReadFile(filepath.Join(imgDir, id+".jpg"))
			if err != nil {
				t.Fatalf("read image: %v", err)
			}
			if string(img) != "jpeg-bytes-"+id {
				t.Errorf("image %s not copied verbatim: %q", id, img)
			}
		}
	}

	m, err := ReadManifest(res.ManifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	want := &Manifest{
		Path:  res.OutputRoot,
		Train: "train/images",
		Val:   "val/images",
		Names: map[int]string{0: "elliptical", 1: "spiral", 2: "edge-on", 3: "artifact"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestMaterialize_Reproducible(t *testing.T) {
	var ids []int
	for i := 0; i < 10; i++ {
		ids = append(ids, 100000+i)
	}
	f := newFixture(t, ids, tenRows()...)
	opts := f.options()
	opts.SampleSize = 7

	first, err := Materialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstManifest, _ := os.ReadFile(first.ManifestPath)

	second, err := Materialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondManifest, _ := os.ReadFile(second.ManifestPath)

	if diff := cmp.Diff(first.TrainIDs, second.TrainIDs); diff != "" {
		t.Errorf("train membership changed:\n%s", diff)
	}
	if diff := cmp.Diff(first.ValIDs, second.ValIDs); diff != "" {
		t.Errorf("val membership changed:\n%s", diff)
	}
	if !bytes.Equal(firstManifest, secondManifest) {
		t.Errorf("manifest bytes differ:\n%s\n---\n%s", firstManifest, secondManifest)
	}
	if got := len(first.TrainIDs) + len(first.ValIDs); got != 7 {
		t.Errorf("sampled %d records, want 7", got)
	}
}

func TestMaterialize_RerunDropsStaleEntries(t *testing.T) {
	var ids []int
	for i := 0; i < 10; i++ {
		ids = append(ids, 100000+i)
	}
	rows := tenRows()
	f := newFixture(t, ids, rows...)

	if _, err := Materialize(context.Background(), f.options()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run only knows the first three records.
	writeLabels(t, f.labels, rows[:3]...)
	res, err := Materialize(context.Background(), f.options())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	allowed := map[string]bool{"100000": true, "100001": true, "100002": true}
	for _, split := range Splits {
		for _, id := range listStems(t, filepath.Join(res.OutputRoot, string(split), "images")) {
			if !allowed[id] {
				t.Errorf("stale image %s left in %s", id, split)
			}
		}
	}
	if got := res.TrainCount + res.ValCount; got != 3 {
		t.Errorf("processed %d images, want 3", got)
	}
}

func TestMaterialize_SourceNotFound(t *testing.T) {
	f := newFixture(t, nil, tenRows()...)

	opts := f.options()
	opts.ArchivePath = filepath.Join(f.dir, "missing.zip")
	if _, err := Materialize(context.Background(), opts); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("missing archive: got %v, want ErrSourceNotFound", err)
	}

	opts = f.options()
	opts.LabelsPath = filepath.Join(f.dir, "missing.csv")
	_, err := Materialize(context.Background(), opts)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("missing labels: got %v, want ErrSourceNotFound", err)
	}
	if errors.Is(err, ErrRecordInvalid) {
		t.Error("source-not-found must be distinguishable from record-invalid")
	}
}

func TestMaterialize_RecordInvalid(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		f := newFixture(t, []int{1})
		content := "GalaxyID,Class1.1,Class1.2\n1,0.5,0.5\n"
		if err := os.WriteFile(f.labels, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Materialize(context.Background(), f.options())
		if !errors.Is(err, ErrRecordInvalid) {
			t.Fatalf("got %v, want ErrRecordInvalid", err)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		f := newFixture(t, []int{1, 2}, row(1, 0.8, 0.1, 0.1, 0.1, 0.1, 0.1), "2,0.8,,0.1,0.1,0.1,0.1,0.1\n")
		_, err := Materialize(context.Background(), f.options())
		if !errors.Is(err, ErrRecordInvalid) {
			t.Fatalf("got %v, want ErrRecordInvalid", err)
		}
		if !errors.Is(err, morphology.ErrMissingField) {
			t.Errorf("expected wrapped ErrMissingField, got %v", err)
		}
		if _, statErr := os.Stat(f.out); !os.IsNotExist(statErr) {
			t.Errorf("output root should not be created on invalid input, stat err = %v", statErr)
		}
	})
}

func TestMaterialize_EmptyTable(t *testing.T) {
	f := newFixture(t, []int{1})

	res, err := Materialize(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if res.TrainCount != 0 || res.ValCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", res.TrainCount, res.ValCount)
	}
	m, err := ReadManifest(res.ManifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(m.Names) != 4 || m.Train != "train/images" {
		t.Errorf("unexpected empty manifest: %+v", m)
	}
}

func TestMaterialize_InvalidOptions(t *testing.T) {
	f := newFixture(t, nil, tenRows()...)
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero split", func(o *Options) { o.ValSplit = 0 }},
		{"full split", func(o *Options) { o.ValSplit = 1 }},
		{"negative sample", func(o *Options) { o.SampleSize = -1 }},
		{"empty root", func(o *Options) { o.OutputRoot = "" }},
		{"extract inside root", func(o *Options) { o.ExtractDir = filepath.Join(f.out, "raw") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := f.options()
			tt.modify(&opts)
			if _, err := Materialize(context.Background(), opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "images.zip")
	writeArchive(t, archive, []int{7, 8})
	extractDir := filepath.Join(dir, "data")

	imagesDir, extracted, err := Extract(archive, extractDir, DefaultArchiveSubdir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !extracted {
		t.Fatal("first Extract should unpack the archive")
	}
	if diff := cmp.Diff([]string{"7", "8"}, listStems(t, imagesDir)); diff != "" {
		t.Errorf("extracted files mismatch:\n%s", diff)
	}

	// A corrupt archive proves the second call never reads it.
	if err := os.WriteFile(archive, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	again, extracted, err := Extract(archive, extractDir, DefaultArchiveSubdir)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if extracted || again != imagesDir {
		t.Errorf("second Extract = (%s, %v), want (%s, false)", again, extracted, imagesDir)
	}
}

func TestMaterialize_FlatArchive(t *testing.T) {
	f := newFixture(t, nil, tenRows()...)
	ids := make([]int, 10)
	for i := range ids {
		ids[i] = 100000 + i
	}
	writeArchiveIn(t, f.archive, "", ids)

	res, err := Materialize(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if res.TrainCount != 8 || res.ValCount != 2 || res.Skipped != 0 {
		t.Errorf("counts = train %d val %d skipped %d, want 8/2/0", res.TrainCount, res.ValCount, res.Skipped)
	}
	if got := len(listStems(t, filepath.Join(f.out, "train", "labels"))); got != 8 {
		t.Errorf("train labels = %d, want 8", got)
	}
}

func TestMaterialize_CancelledRemovesPartialOutput(t *testing.T) {
	f := newFixture(t, []int{100000, 100001, 100002}, tenRows()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Materialize(ctx, f.options()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(f.out); !os.IsNotExist(err) {
		t.Errorf("output root left behind after cancel: %v", err)
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("../escape.jpg")
	w.Write([]byte("x"))
	zw.Close()
	if err := os.WriteFile(archive, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Extract(archive, filepath.Join(dir, "data"), ""); err == nil {
		t.Fatal("expected error for escaping entry")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.jpg")); !os.IsNotExist(err) {
		t.Error("escaping entry was written")
	}
}

func TestPlanSplit(t *testing.T) {
	var records []morphology.SurveyRecord
	for i := 0; i < 25; i++ {
		records = append(records, morphology.SurveyRecord{ID: fmt.Sprint(i)})
	}

	tests := []struct {
		name       string
		sampleSize int
		valSplit   float64
		wantTotal  int
		wantVal    int
	}{
		{"all records", 0, 0.2, 25, 5},
		{"sample", 10, 0.3, 10, 3},
		{"sample larger than table", 100, 0.2, 25, 5},
		{"rounds up", 0, 0.1, 25, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanSplit(records, tt.sampleSize, tt.valSplit, 42)
			if len(plan.Val) != tt.wantVal {
				t.Errorf("val size = %d, want %d", len(plan.Val), tt.wantVal)
			}
			if got := len(plan.Train) + len(plan.Val); got != tt.wantTotal {
				t.Errorf("total = %d, want %d", got, tt.wantTotal)
			}

			seen := make(map[string]bool)
			for _, r := range append(append([]morphology.SurveyRecord{}, plan.Train...), plan.Val...) {
				if seen[r.ID] {
					t.Errorf("record %s assigned twice", r.ID)
				}
				seen[r.ID] = true
			}

			again := PlanSplit(records, tt.sampleSize, tt.valSplit, 42)
			if diff := cmp.Diff(ids(plan.Val), ids(again.Val)); diff != "" {
				t.Errorf("plan not reproducible:\n%s", diff)
			}
		})
	}

	if empty := PlanSplit(nil, 5, 0.2, 1); len(empty.Train)+len(empty.Val) != 0 {
		t.Errorf("empty input produced %+v", empty)
	}
}

func TestLoadTable_Identifiers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.csv")
	content := csvHeader +
		"100008.0,0.3,0.6,0.1,0.0,0.1,0.2,0.5\n" +
		" 100023 ,0.4,0.5,0.1,0.0,0.1,0.2,0.5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadTable(path, "")
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if diff := cmp.Diff([]string{"100008", "100023"}, ids(records)); diff != "" {
		t.Errorf("ids mismatch:\n%s", diff)
	}
	if got := records[0].Probabilities[morphology.FieldDisk]; got != 0.6 {
		t.Errorf("disk vote = %v, want 0.6", got)
	}
}
