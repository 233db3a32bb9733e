package domain

import "time"

// Decision is the binary outcome of a scoring request.
type Decision string

const (
	DecisionFraud      Decision = "fraud"
	DecisionLegitimate Decision = "legitimate"
)

// Reason codes, listed in emission order.
const (
	ReasonHighAmount  = "high transaction amount"
	ReasonFarFromHome = "large distance from home"
	ReasonUnusualTime = "unusual transaction time"
	ReasonWeekend     = "weekend transaction"
)

// Canned explanations used when no reason list is emitted.
const (
	ReasoningNormal    = "normal transaction behavior"
	ReasoningAnomalous = "anomalous pattern detected"
)

// ScoredDecision is the client-facing scoring result.
type ScoredDecision struct {
	FraudProbability float64  `json:"fraud_probability"`
	Decision         Decision `json:"decision"`
	Reasoning        string   `json:"reasoning"`
}

// Evaluation is the full engine output for one transaction.
// Only Result crosses the API boundary; the rest feeds logs and audit sinks.
type Evaluation struct {
	Result   ScoredDecision
	RawScore float64
	Features FeatureVector
	Reasons  []string
}

// DecisionRecord is one append-only audit entry.
type DecisionRecord struct {
	ID               string           `json:"id"`
	RequestID        string           `json:"requestId,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	Input            TransactionInput `json:"input"`
	Features         FeatureVector    `json:"features"`
	RawScore         float64          `json:"rawScore"`
	FraudProbability float64          `json:"fraudProbability"`
	Decision         Decision         `json:"decision"`
	Reasoning        string           `json:"reasoning"`
}
