package domain

import (
	"fmt"
	"strings"
)

// ArtifactLoadError reports a model or scaler artifact that could not be
// loaded. It is fatal at startup.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Message string
	Type    string
}

// ValidationError reports caller input that was rejected before scoring.
// Its field detail is safe to return to the client.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

// Scoring stages reported by ScoringError.
const (
	StageFeatures  = "features"
	StageNormalize = "normalize"
	StageScore     = "score"
)

// ScoringError reports a failure inside feature derivation, normalization
// or model invocation. Its detail must never reach the client.
type ScoringError struct {
	Stage string
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring failed at %s: %v", e.Stage, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }
