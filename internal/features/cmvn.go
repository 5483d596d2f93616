package features

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SetCMVN installs mean-variance normalization statistics. The statistics
// apply to the post-LFR feature dimension (NumMels * LFRM). Passing
// mismatched lengths is a configuration error.
func (e *Extractor) SetCMVN(mean, variance []float32) error {
	dim := e.Dim()
	if len(mean) != dim || len(variance) != dim {
		return fmt.Errorf("CMVN statistics must have %d dimensions, got mean=%d variance=%d",
			dim, len(mean), len(variance))
	}
	for d, v := range variance {
		if v <= 0 {
			return fmt.Errorf("CMVN variance[%d] must be positive, got %f", d, v)
		}
	}
	e.cmvnMean = mean
	e.cmvnVar = variance
	return nil
}

// LoadCMVN reads normalization statistics from a text file with two rows of
// whitespace-separated values: the means followed by the variances. Without
// loaded statistics Extract passes features through unchanged.
func (e *Extractor) LoadCMVN(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read CMVN file %s: %w", path, err)
	}

	var rows [][]float32
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return fmt.Errorf("invalid CMVN value %q in %s: %w", f, path, err)
			}
			row[i] = float32(v)
		}
		rows = append(rows, row)
	}

	if len(rows) != 2 {
		return fmt.Errorf("CMVN file %s must contain 2 rows (mean, variance), got %d", path, len(rows))
	}
	return e.SetCMVN(rows[0], rows[1])
}
