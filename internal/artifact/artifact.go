// Package artifact loads fitted model and scaler artifacts and exposes
// them behind a single read-only store.
//
// Artifacts are JSON documents tagged with a kind. Supported models are
// isolation forests exported node by node and CEL decision expressions.
// Supported scalers are standard and min-max scalers.
package artifact

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
)

// Store holds the loaded model and optional scaler. It is immutable after
// construction and safe for concurrent use.
type Store struct {
	model      domain.Model
	scaler     domain.Scaler
	modelPath  string
	scalerPath string
}

// Load reads the model at modelPath and, when scalerPath is not empty, the
// scaler at scalerPath. Both must declare exactly the feature names of
// scheme. Every failure is an *domain.ArtifactLoadError.
func Load(modelPath, scalerPath string, scheme features.Scheme) (*Store, error) {
	if modelPath == "" {
		return nil, &domain.ArtifactLoadError{Path: modelPath, Err: fmt.Errorf("model path is empty")}
	}

	kind, data, err := readDocument(modelPath)
	if err != nil {
		return nil, &domain.ArtifactLoadError{Path: modelPath, Err: err}
	}
	model, err := decodeModel(kind, data)
	if err != nil {
		return nil, &domain.ArtifactLoadError{Path: modelPath, Err: err}
	}
	if !scheme.Matches(model.Features()) {
		return nil, &domain.ArtifactLoadError{Path: modelPath, Err: schemeMismatch(scheme, model.Features())}
	}

	s := &Store{model: model, modelPath: modelPath}
	if scalerPath == "" {
		return s, nil
	}

	kind, data, err = readDocument(scalerPath)
	if err != nil {
		return nil, &domain.ArtifactLoadError{Path: scalerPath, Err: err}
	}
	scaler, err := decodeScaler(kind, data)
	if err != nil {
		return nil, &domain.ArtifactLoadError{Path: scalerPath, Err: err}
	}
	if !scheme.Matches(scaler.Features()) {
		return nil, &domain.ArtifactLoadError{Path: scalerPath, Err: schemeMismatch(scheme, scaler.Features())}
	}

	s.scaler = scaler
	s.scalerPath = scalerPath
	return s, nil
}

// New wraps already constructed artifacts. scaler may be nil.
func New(model domain.Model, scaler domain.Scaler) *Store {
	return &Store{model: model, scaler: scaler}
}

func schemeMismatch(scheme features.Scheme, got []string) error {
	return fmt.Errorf("artifact features [%s] do not match %s scheme [%s]",
		strings.Join(got, ", "), scheme.Name, strings.Join(scheme.Names, ", "))
}

// Normalize applies the scaler. Without a scaler it returns v unchanged.
func (s *Store) Normalize(v domain.FeatureVector) (domain.FeatureVector, error) {
	if s.scaler == nil {
		return v, nil
	}
	return s.scaler.Transform(v)
}

// Score returns the model's decision function for v.
func (s *Store) Score(v domain.FeatureVector) (float64, error) {
	return s.model.DecisionFunction(v)
}

// HasScaler reports whether a scaler is loaded.
func (s *Store) HasScaler() bool { return s.scaler != nil }

// Info describes the loaded artifacts.
func (s *Store) Info() domain.ArtifactInfo {
	info := domain.ArtifactInfo{
		ModelKind: s.model.Kind(),
		ModelPath: s.modelPath,
		Features:  append([]string(nil), s.model.Features()...),
	}
	if s.scaler != nil {
		info.ScalerKind = s.scaler.Kind()
		info.ScalerPath = s.scalerPath
	}
	return info
}
