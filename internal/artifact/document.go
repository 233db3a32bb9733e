package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Artifact kinds.
const (
	KindIsolationForest = "isolation_forest"
	KindExpression      = "expression"
	KindStandardScaler  = "standard_scaler"
	KindMinMaxScaler    = "min_max_scaler"
)

var errNotFinite = errors.New("value is not finite")

// envelope is the part every artifact document shares.
type envelope struct {
	Kind     string   `json:"kind"`
	Features []string `json:"features"`
}

// readDocument reads path and returns its kind plus the raw bytes.
func readDocument(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode artifact: %w", err)
	}
	if env.Kind == "" {
		return "", nil, fmt.Errorf("artifact has no kind")
	}
	if len(env.Features) == 0 {
		return "", nil, fmt.Errorf("artifact declares no features")
	}

	return env.Kind, data, nil
}

// decodeStrict decodes data into v, rejecting fields v does not declare.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}

// decodeModel builds the model family named by kind.
func decodeModel(kind string, data []byte) (domain.Model, error) {
	switch kind {
	case KindIsolationForest:
		var doc forestDocument
		if err := decodeStrict(data, &doc); err != nil {
			return nil, err
		}
		forest, err := NewIsolationForest(doc)
		if err != nil {
			return nil, err
		}
		return forest, nil

	case KindExpression:
		var doc expressionDocument
		if err := decodeStrict(data, &doc); err != nil {
			return nil, err
		}
		expr, err := NewExpressionModel(doc.Features, doc.Expression)
		if err != nil {
			return nil, err
		}
		return expr, nil

	case KindStandardScaler, KindMinMaxScaler:
		return nil, fmt.Errorf("artifact kind %q is a scaler, not a model", kind)

	default:
		return nil, fmt.Errorf("unsupported model kind: %s", kind)
	}
}

// decodeScaler builds the scaler family named by kind.
func decodeScaler(kind string, data []byte) (domain.Scaler, error) {
	switch kind {
	case KindStandardScaler:
		var doc standardScalerDocument
		if err := decodeStrict(data, &doc); err != nil {
			return nil, err
		}
		scaler, err := NewStandardScaler(doc.Features, doc.Mean, doc.Scale)
		if err != nil {
			return nil, err
		}
		return scaler, nil

	case KindMinMaxScaler:
		var doc minMaxScalerDocument
		if err := decodeStrict(data, &doc); err != nil {
			return nil, err
		}
		scaler, err := NewMinMaxScaler(doc.Features, doc.Min, doc.Scale)
		if err != nil {
			return nil, err
		}
		return scaler, nil

	case KindIsolationForest, KindExpression:
		return nil, fmt.Errorf("artifact kind %q is a model, not a scaler", kind)

	default:
		return nil, fmt.Errorf("unsupported scaler kind: %s", kind)
	}
}
