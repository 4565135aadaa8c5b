package data

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/distlbfgs/internal/tensor"
)

// LabeledPoint is a single training example.
type LabeledPoint struct {
	Label    float64
	Features *tensor.Tensor
}

type sparseRow struct {
	label   float64
	indices []int
	values  []float64
}

// LoadLibSVMFile opens path and parses it with LoadLibSVM.
func LoadLibSVMFile(path string, numFeatures int) ([]LabeledPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	points, err := LoadLibSVM(f, numFeatures)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// LoadLibSVM parses LIBSVM formatted examples ("label idx:val idx:val ...",
// 1-based ascending indices) into dense labeled points. If numFeatures <= 0 the
// feature count is the largest index seen.
func LoadLibSVM(r io.Reader, numFeatures int) ([]LabeledPoint, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var rows []sparseRow
	maxIndex := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		row, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if n := len(row.indices); n > 0 && row.indices[n-1] > maxIndex {
			maxIndex = row.indices[n-1]
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}

	if numFeatures <= 0 {
		numFeatures = maxIndex
	} else if maxIndex > numFeatures {
		return nil, fmt.Errorf("feature index %d exceeds numFeatures %d", maxIndex, numFeatures)
	}

	points := make([]LabeledPoint, len(rows))
	for i, row := range rows {
		features := tensor.Zeros(numFeatures)
		for k, idx := range row.indices {
			features.Data[idx-1] = row.values[k]
		}
		points[i] = LabeledPoint{Label: row.label, Features: features}
	}

	slog.Debug("Loaded LIBSVM dataset", "examples", len(points), "features", numFeatures)
	return points, nil
}

func parseRow(line string) (sparseRow, error) {
	fields := strings.Fields(line)
	label, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return sparseRow{}, fmt.Errorf("invalid label %q: %w", fields[0], err)
	}

	row := sparseRow{
		label:   label,
		indices: make([]int, 0, len(fields)-1),
		values:  make([]float64, 0, len(fields)-1),
	}
	prev := 0
	for _, field := range fields[1:] {
		idxStr, valStr, ok := strings.Cut(field, ":")
		if !ok {
			return sparseRow{}, fmt.Errorf("malformed feature %q", field)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return sparseRow{}, fmt.Errorf("invalid feature index %q: %w", idxStr, err)
		}
		if idx <= prev {
			return sparseRow{}, fmt.Errorf("feature indices must be one-based and ascending, got %d after %d", idx, prev)
		}
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return sparseRow{}, fmt.Errorf("invalid feature value %q: %w", valStr, err)
		}
		row.indices = append(row.indices, idx)
		row.values = append(row.values, val)
		prev = idx
	}
	return row, nil
}
