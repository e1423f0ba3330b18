package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/galaxy-tools/internal/morphology"
)

// DefaultIDColumn is the identifier column of the Galaxy Zoo solutions table.
const DefaultIDColumn = "GalaxyID"

// LoadTable reads the survey CSV at path.
//
// The header must contain idColumn and every morphology.RequiredFields
// column. Cells that are empty or not numbers are left out of the record's
// Probabilities, so classifying that record reports the missing field instead
// of treating it as zero. Other columns are kept when numeric.
func LoadTable(path, idColumn string) ([]morphology.SurveyRecord, error) {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(path, err)
		}
		return nil, fmt.Errorf("failed to open label table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, invalidf(path, "empty label table")
		}
		return nil, fmt.Errorf("failed to read label table header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// Excel exports may prefix the first header with a byte order mark.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idIdx := -1
	present := make(map[string]bool, len(header))
	for i, name := range header {
		present[name] = true
		if name == idColumn {
			idIdx = i
		}
	}
	if idIdx < 0 {
		return nil, invalidf(path, "missing identifier column %q", idColumn)
	}
	for _, field := range morphology.RequiredFields {
		if !present[field] {
			return nil, invalidf(path, "missing column %q", field)
		}
	}

	var records []morphology.SurveyRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, invalidf(path, "line %d: %v", line, err)
		}

		id, err := normalizeID(row[idIdx])
		if err != nil {
			return nil, invalidf(path, "line %d: %v", line, err)
		}

		probs := make(map[string]float64, len(header)-1)
		for i, cell := range row {
			if i == idIdx || i >= len(header) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) {
				continue
			}
			probs[header[i]] = v
		}
		records = append(records, morphology.SurveyRecord{ID: id, Probabilities: probs})
	}

	return records, nil
}

// normalizeID turns "100008" and "100008.0" into "100008".
func normalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10), nil
	}
	// Non-numeric identifiers are used verbatim as file stems.
	if strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("identifier %q contains a path separator", s)
	}
	return s, nil
}
