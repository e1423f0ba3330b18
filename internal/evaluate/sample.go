package evaluate

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/ironsheep/galaxy-tools/internal/dataset"
)

// ListImages returns the .jpg files in dir in lexical order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &dataset.Error{Kind: dataset.ErrSourceNotFound, Path: dir, Err: err}
		}
		return nil, fmt.Errorf("failed to read image dir: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// SampleImages picks up to n distinct images from dir. The same seed over
// the same directory gives the same sample.
func SampleImages(dir string, n int, seed uint64) ([]string, error) {
	all, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, &dataset.Error{Kind: dataset.ErrSourceNotFound, Path: dir, Msg: "no images found"}
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}

	idxs := make([]int, n)
	sampleuv.WithoutReplacement(idxs, len(all), rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]string, n)
	for i, idx := range idxs {
		out[i] = all[idx]
	}
	return out, nil
}

// RandomImage picks one image from dir.
func RandomImage(dir string, seed uint64) (string, error) {
	picked, err := SampleImages(dir, 1, seed)
	if err != nil {
		return "", err
	}
	return picked[0], nil
}

// ReadGroundTruth returns the class in labelDir/<stem>.txt. ok is false
// when there is no label dir, no file, or its first token is not an integer.
func ReadGroundTruth(labelDir, stem string) (class int, ok bool) {
	if labelDir == "" {
		return 0, false
	}
	f, err := os.Open(filepath.Join(labelDir, stem+".txt"))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, false
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return 0, false
	}
	class, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return class, true
}
