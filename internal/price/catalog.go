// Package price serves the crop price page: the crop catalog on disk and
// the placeholder prediction computed from it.
package price

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kjstillabower/smart-farm-service/internal/validation"
)

const (
	modelSuffix         = "_model.pkl"
	rainfallModelSuffix = "_rainfall_model.pkl"
	thresholdsSuffix    = "_thresholds.json"
)

// Thresholds holds rainfall statistics for one crop.
type Thresholds struct {
	MeanRainfall       float64 `json:"mean_rainfall"`
	StdRainfall        float64 `json:"std_rainfall"`
	MinRainfall        float64 `json:"min_rainfall,omitempty"`
	MaxRainfall        float64 `json:"max_rainfall,omitempty"`
	DeficientThreshold float64 `json:"deficient_threshold,omitempty"`
	ExcessiveThreshold float64 `json:"excessive_threshold,omitempty"`
}

// Crop is one entry of the catalog.
type Crop struct {
	Name       string
	HasModel   bool
	Thresholds *Thresholds
}

// Catalog lists the crops found in a models directory.
type Catalog struct {
	crops map[string]Crop
	names []string
}

// LoadCatalog scans dir. A missing directory yields an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{crops: make(map[string]Crop)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fname := e.Name()
		var name string
		switch {
		case strings.HasSuffix(fname, rainfallModelSuffix):
			name = strings.TrimSuffix(fname, rainfallModelSuffix)
		case strings.HasSuffix(fname, modelSuffix):
			name = strings.TrimSuffix(fname, modelSuffix)
		default:
			continue
		}
		if name == "" || strings.HasSuffix(name, "_rainfall") {
			continue
		}
		if _, seen := c.crops[name]; seen {
			continue
		}
		crop := Crop{Name: name}
		if _, err := os.Stat(filepath.Join(dir, name+rainfallModelSuffix)); err == nil {
			crop.HasModel = true
			t, err := readThresholds(filepath.Join(dir, name+thresholdsSuffix))
			if err != nil {
				return nil, err
			}
			crop.Thresholds = t
		}
		c.crops[name] = crop
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

func readThresholds(path string) (*Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read thresholds: %w", err)
	}
	var t Thresholds
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &t, nil
}

// ErrInvalidCropName is returned when a crop name cannot be used as a file name.
var ErrInvalidCropName = errors.New("invalid crop name")

// WriteThresholds writes t as <dir>/<crop>_thresholds.json. crop must pass
// validation.CropName unchanged.
func WriteThresholds(dir, crop string, t Thresholds) error {
	if name, err := validation.CropName(crop); err != nil || name != crop {
		return fmt.Errorf("%w: %q", ErrInvalidCropName, crop)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, crop+thresholdsSuffix), data, 0o644)
}

// Names returns crop names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Lookup returns the crop with the given name.
func (c *Catalog) Lookup(name string) (Crop, bool) {
	crop, ok := c.crops[name]
	return crop, ok
}
