package price

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// Rainfall categories.
const (
	CategoryExcessive = "Excessive"
	CategoryDeficient = "Deficient"
	CategoryNormal    = "Normal"
)

const (
	categoryStdFactor = 0.75
	quintalFactor     = 25.0
	inflationFactor   = 1.11
	confidenceFactor  = 0.15
	wpiMin            = 100.0
	wpiMax            = 200.0
)

// ErrNoModel is returned for crops without a rainfall model file.
var ErrNoModel = errors.New("no model found")

// Prediction is the result shown on the price page.
type Prediction struct {
	Crop              string
	Year              int
	RainfallCategory  string
	WPI               float64
	PerQuintal        float64
	InflationAdjusted float64
	ConfidenceLow     float64
	ConfidenceHigh    float64
	DeficientBelow    float64
	ExcessiveAbove    float64
}

// Summary is the one-line headline for the prediction.
func (p Prediction) Summary() string {
	return fmt.Sprintf("Predicted price for %s is ₹%.2f in %d", p.Crop, p.PerQuintal, p.Year)
}

// Predictor computes price figures for catalog crops.
//
// The WPI figure is drawn uniformly at random; the stored models are not
// evaluated.
type Predictor struct {
	catalog *Catalog

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPredictor returns a Predictor. rnd may be nil to use a time-seeded source.
func NewPredictor(catalog *Catalog, rnd *rand.Rand) *Predictor {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Predictor{catalog: catalog, rnd: rnd}
}

// Crops lists the crops offered on the page.
func (p *Predictor) Crops() []string {
	return p.catalog.Names()
}

// Categorize places rainfall relative to the crop's thresholds.
func Categorize(rainfall float64, t Thresholds) (category string, deficientBelow, excessiveAbove float64) {
	deficientBelow = t.MeanRainfall - categoryStdFactor*t.StdRainfall
	excessiveAbove = t.MeanRainfall + categoryStdFactor*t.StdRainfall
	switch {
	case rainfall > excessiveAbove:
		category = CategoryExcessive
	case rainfall < deficientBelow:
		category = CategoryDeficient
	default:
		category = CategoryNormal
	}
	return category, deficientBelow, excessiveAbove
}

// Predict returns the figures for crop at the given rainfall and year.
func (p *Predictor) Predict(crop string, rainfall float64, year int) (Prediction, error) {
	c, ok := p.catalog.Lookup(crop)
	if !ok || !c.HasModel {
		return Prediction{}, fmt.Errorf("%w for %s", ErrNoModel, crop)
	}
	var t Thresholds
	if c.Thresholds != nil {
		t = *c.Thresholds
	}
	category, low, high := Categorize(rainfall, t)

	p.mu.Lock()
	wpi := wpiMin + p.rnd.Float64()*(wpiMax-wpiMin)
	p.mu.Unlock()

	perQuintal := wpi * quintalFactor
	spread := perQuintal * confidenceFactor
	return Prediction{
		Crop:              crop,
		Year:              year,
		RainfallCategory:  category,
		WPI:               wpi,
		PerQuintal:        perQuintal,
		InflationAdjusted: perQuintal * inflationFactor,
		ConfidenceLow:     perQuintal - spread,
		ConfidenceHigh:    perQuintal + spread,
		DeficientBelow:    low,
		ExcessiveAbove:    high,
	}, nil
}

// YearRange returns the selectable years, 2018 through current+9.
func YearRange(current int) []int {
	const first = 2018
	if current < first {
		current = first
	}
	years := make([]int, 0, current+10-first)
	for y := first; y < current+10; y++ {
		years = append(years, y)
	}
	return years
}
