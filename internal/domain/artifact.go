package domain

// Model is a trained anomaly detector. DecisionFunction follows the
// sklearn sign convention: more negative means more anomalous.
type Model interface {
	Kind() string
	Features() []string
	DecisionFunction(v FeatureVector) (float64, error)
}

// Scaler is a fitted feature transform applied before scoring.
type Scaler interface {
	Kind() string
	Features() []string
	Transform(v FeatureVector) (FeatureVector, error)
}

// ArtifactInfo describes the loaded artifacts for operators.
type ArtifactInfo struct {
	ModelKind  string   `json:"modelKind"`
	ModelPath  string   `json:"modelPath"`
	ScalerKind string   `json:"scalerKind,omitempty"`
	ScalerPath string   `json:"scalerPath,omitempty"`
	Features   []string `json:"features"`
}
