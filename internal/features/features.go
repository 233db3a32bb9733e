// Package features derives model feature vectors from transactions.
//
// A Scheme fixes both the feature order and the derivation. Artifacts
// record the scheme's feature names at fit time, and the artifact store
// refuses artifacts whose names disagree with the active scheme.
package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Scheme is a named, ordered feature derivation.
type Scheme struct {
	Name   string
	Names  []string
	derive func(t domain.TransactionInput) domain.FeatureVector
}

// Derived is the canonical scheme:
// [log1p(amount), is_night, is_weekend, distance_from_home, amount/(distance_from_home+1)].
var Derived = Scheme{
	Name: domain.SchemeDerived,
	Names: []string{
		"log_amount",
		"is_night",
		"is_weekend",
		"distance_from_home",
		"amount_per_distance",
	},
	derive: func(t domain.TransactionInput) domain.FeatureVector {
		return domain.FeatureVector{
			math.Log1p(t.Amount),
			boolToFloat(t.IsNight()),
			boolToFloat(t.IsWeekend()),
			t.DistanceFromHome,
			t.Amount / (t.DistanceFromHome + 1),
		}
	},
}

// Raw is the first-revision scheme that feeds the five input fields
// unchanged. Kept for artifacts fitted before the derived features existed.
var Raw = Scheme{
	Name: domain.SchemeRaw,
	Names: []string{
		"amount",
		"hour",
		"day_of_week",
		"month",
		"distance_from_home",
	},
	derive: func(t domain.TransactionInput) domain.FeatureVector {
		return domain.FeatureVector{
			t.Amount,
			float64(t.Hour),
			float64(t.DayOfWeek),
			float64(t.Month),
			t.DistanceFromHome,
		}
	},
}

// Lookup returns the scheme registered under name.
func Lookup(name string) (Scheme, error) {
	switch name {
	case domain.SchemeDerived:
		return Derived, nil
	case domain.SchemeRaw:
		return Raw, nil
	default:
		return Scheme{}, fmt.Errorf("unknown feature scheme: %q", name)
	}
}

// Derive encodes t. The result is a fresh slice owned by the caller.
func (s Scheme) Derive(t domain.TransactionInput) (domain.FeatureVector, error) {
	if s.derive == nil {
		return nil, fmt.Errorf("feature scheme %q has no derivation", s.Name)
	}
	v := s.derive(t)
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("feature %s is not finite: %v", s.Names[i], x)
		}
	}
	return v, nil
}

// Dim returns the vector length.
func (s Scheme) Dim() int { return len(s.Names) }

// Matches reports whether names equals the scheme's feature order exactly.
func (s Scheme) Matches(names []string) bool {
	return slices.Equal(s.Names, names)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
