package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/smart-farm-service/internal/models"
)

// ErrInvalidJSON is returned when the body is not a non-empty JSON object.
var ErrInvalidJSON = errors.New("invalid json")

// MaxSoilStatusLen is the stored width of the soil status column.
const MaxSoilStatusLen = 16

// ErrBadValues is returned when a numeric field cannot be interpreted as a number.
var ErrBadValues = errors.New("bad values")

// Payload is a normalized device submission.
type Payload struct {
	Temperature float64
	Humidity    float64
	Soil        int
	SoilStatus  string
	HeatIndex   *float64
}

// ParsePayload decodes a device body. Each field accepts a primary and an
// alternate key (temperature/temp, humidity/hum, soil/soil_analog,
// soil_status/soil_digital); missing numbers default to zero.
func ParsePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil || len(raw) == 0 {
		return Payload{}, ErrInvalidJSON
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, ErrInvalidJSON
	}

	var p Payload
	var err error
	if p.Temperature, err = floatField(raw, "temperature", "temp"); err != nil {
		return Payload{}, err
	}
	if p.Humidity, err = floatField(raw, "humidity", "hum"); err != nil {
		return Payload{}, err
	}
	if p.Soil, err = intField(raw, "soil", "soil_analog"); err != nil {
		return Payload{}, err
	}
	p.SoilStatus = statusField(raw, "soil_status", "soil_digital")

	if v, ok := raw["heat_index"]; ok {
		if f, err := toFloat(v); err == nil {
			p.HeatIndex = &f
		}
	}
	return p, nil
}

// pick returns the primary value when the key is present, else the alternate.
// A null primary is returned as-is (and rejected by the caller) unless
// skipNull is set. ok is false only when neither key is present.
func pick(raw map[string]interface{}, primary, alternate string, skipNull bool) (interface{}, bool) {
	if v, ok := raw[primary]; ok && (v != nil || !skipNull) {
		return v, true
	}
	v, ok := raw[alternate]
	return v, ok
}

func floatField(raw map[string]interface{}, primary, alternate string) (float64, error) {
	v, ok := pick(raw, primary, alternate, false)
	if !ok {
		return 0, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadValues, primary)
	}
	return f, nil
}

// intField treats a null primary as absent, so {"soil":null} falls back to
// soil_analog.
func intField(raw map[string]interface{}, primary, alternate string) (int, error) {
	v, ok := pick(raw, primary, alternate, true)
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: %s", ErrBadValues, primary)
		}
		return int(f), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrBadValues, primary)
		}
		return i, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrBadValues, primary)
	}
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	var err error
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		if n {
			f = 1
		}
	default:
		err = ErrBadValues
	}
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrBadValues
	}
	return f, nil
}

// statusField returns the first non-empty status, falling back to "Unknown".
// Non-string values (digital pins report 0/1) are formatted as text.
func statusField(raw map[string]interface{}, primary, alternate string) string {
	for _, k := range []string{primary, alternate} {
		if s := statusText(raw[k]); s != "" {
			if r := []rune(s); len(r) > MaxSoilStatusLen {
				s = string(r[:MaxSoilStatusLen])
			}
			return s
		}
	}
	return models.SoilStatusUnknown
}

func statusText(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		if s.String() == "0" {
			return ""
		}
		return s.String()
	case bool:
		if !s {
			return ""
		}
		return "true"
	default:
		b, _ := json.Marshal(s)
		if t := string(b); t != "[]" && t != "{}" {
			return t
		}
		return ""
	}
}
