package price

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultCropName is used when the dataset has no Crop column.
const DefaultCropName = "default_crop"

// ComputeThresholds reads a training CSV and returns rainfall statistics
// per crop. The rainfall column is Rainfall_x when present, else Rainfall.
// Rows with an unparsable rainfall value are skipped.
func ComputeThresholds(r io.Reader) (map[string]Thresholds, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cropCol, rainCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Crop":
			cropCol = i
		case "Rainfall_x":
			rainCol = i
		case "Rainfall":
			if rainCol == -1 {
				rainCol = i
			}
		}
	}
	if rainCol == -1 {
		return nil, errors.New("dataset has no Rainfall column")
	}

	samples := make(map[string][]float64)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if rainCol >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[rainCol]), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		crop := DefaultCropName
		if cropCol >= 0 && cropCol < len(rec) {
			crop = strings.TrimSpace(rec[cropCol])
		}
		samples[crop] = append(samples[crop], v)
	}

	out := make(map[string]Thresholds, len(samples))
	for crop, vs := range samples {
		out[crop] = summarize(vs)
	}
	return out, nil
}

// summarize uses the sample standard deviation (n-1); a single sample has std 0.
func summarize(vs []float64) Thresholds {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	var std float64
	if len(vs) > 1 {
		var sq float64
		for _, v := range vs {
			sq += (v - mean) * (v - mean)
		}
		std = math.Sqrt(sq / float64(len(vs)-1))
	}
	return Thresholds{
		MeanRainfall:       mean,
		StdRainfall:        std,
		MinRainfall:        sorted[0],
		MaxRainfall:        sorted[len(sorted)-1],
		DeficientThreshold: mean - categoryStdFactor*std,
		ExcessiveThreshold: mean + categoryStdFactor*std,
	}
}
