package artifact

import (
	"fmt"
	"math"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

type standardScalerDocument struct {
	Kind     string         `json:"kind"`
	Features []string       `json:"features"`
	Mean     []float64      `json:"mean,omitempty"`  // absent when fitted without centering
	Scale    []float64      `json:"scale,omitempty"` // absent when fitted without scaling
	Metadata map[string]any `json:"metadata,omitempty"`
}

type minMaxScalerDocument struct {
	Kind     string         `json:"kind"`
	Features []string       `json:"features"`
	Min      []float64      `json:"min"`
	Scale    []float64      `json:"scale"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StandardScaler applies (x - mean) / scale.
type StandardScaler struct {
	features []string
	mean     []float64
	scale    []float64
}

// NewStandardScaler validates the fitted parameters. A nil mean means no
// centering and a nil scale means unit scale.
func NewStandardScaler(features []string, mean, scale []float64) (*StandardScaler, error) {
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("standard scaler declares no features")
	}
	if mean == nil {
		mean = make([]float64, n)
	}
	if scale == nil {
		scale = make([]float64, n)
		for i := range scale {
			scale[i] = 1
		}
	}
	if err := checkParams("mean", mean, n, false); err != nil {
		return nil, err
	}
	if err := checkParams("scale", scale, n, true); err != nil {
		return nil, err
	}

	return &StandardScaler{
		features: append([]string(nil), features...),
		mean:     append([]float64(nil), mean...),
		scale:    append([]float64(nil), scale...),
	}, nil
}

// Kind returns the artifact kind.
func (s *StandardScaler) Kind() string { return KindStandardScaler }

// Features returns the feature names the scaler was fitted on.
func (s *StandardScaler) Features() []string { return s.features }

// Transform returns a scaled copy of v.
func (s *StandardScaler) Transform(v domain.FeatureVector) (domain.FeatureVector, error) {
	if len(v) != len(s.features) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.features), len(v))
	}
	out := make(domain.FeatureVector, len(v))
	for i, x := range v {
		out[i] = (x - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// MinMaxScaler applies x * scale + min.
type MinMaxScaler struct {
	features []string
	min      []float64
	scale    []float64
}

// NewMinMaxScaler validates the fitted parameters.
func NewMinMaxScaler(features []string, min, scale []float64) (*MinMaxScaler, error) {
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("min-max scaler declares no features")
	}
	if err := checkParams("min", min, n, false); err != nil {
		return nil, err
	}
	if err := checkParams("scale", scale, n, false); err != nil {
		return nil, err
	}

	return &MinMaxScaler{
		features: append([]string(nil), features...),
		min:      append([]float64(nil), min...),
		scale:    append([]float64(nil), scale...),
	}, nil
}

// Kind returns the artifact kind.
func (s *MinMaxScaler) Kind() string { return KindMinMaxScaler }

// Features returns the feature names the scaler was fitted on.
func (s *MinMaxScaler) Features() []string { return s.features }

// Transform returns a scaled copy of v.
func (s *MinMaxScaler) Transform(v domain.FeatureVector) (domain.FeatureVector, error) {
	if len(v) != len(s.features) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.features), len(v))
	}
	out := make(domain.FeatureVector, len(v))
	for i, x := range v {
		out[i] = x*s.scale[i] + s.min[i]
	}
	return out, nil
}

func checkParams(name string, values []float64, n int, nonZero bool) error {
	if len(values) != n {
		return fmt.Errorf("%s has %d values, expected %d", name, len(values), n)
	}
	for i, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%s[%d]: %w", name, i, errNotFinite)
		}
		if nonZero && x == 0 {
			return fmt.Errorf("%s[%d] is zero", name, i)
		}
	}
	return nil
}
