package domain

// TransactionInput is a validated transaction submitted for scoring.
// It is immutable once constructed by the API layer.
type TransactionInput struct {
	Amount           float64 `json:"amount"`
	Hour             int     `json:"hour"`
	DayOfWeek        int     `json:"day_of_week"`
	Month            int     `json:"month"` // carried through; only the raw scheme consumes it
	DistanceFromHome float64 `json:"distance_from_home"`
}

// IsNight reports whether the transaction happened outside 06:00-22:59.
func (t TransactionInput) IsNight() bool {
	return t.Hour < 6 || t.Hour > 22
}

// IsWeekend reports whether day_of_week falls on the weekend (5 or 6).
func (t TransactionInput) IsWeekend() bool {
	return t.DayOfWeek >= 5
}

// FeatureVector is the ordered numeric encoding fed to the model.
// Order must match the order the artifact was fitted on.
type FeatureVector []float64

// Clone returns an independent copy of the vector.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}
