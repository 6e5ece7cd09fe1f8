// internal/domain/scoring/entity.go
package scoring

import (
	"fmt"

	xerrors "frontdesk-service/internal/pkg/errors"
)

type Method string

const (
	MethodPrimary  Method = "primary"
	MethodFallback Method = "fallback"
)

// Request is sent to the external lead-scoring service.
type Request struct {
	VisitID         string `json:"visitId"`
	CustomerSummary string `json:"customerSummary"`
	VisitSummary    string `json:"visitSummary"`
}

// Result is the opaque scoring payload persisted on a visit.
type Result struct {
	PurchaseProbability float64  `json:"purchaseProbability"`
	PriorityRank        int      `json:"priorityRank"`
	Sentiment           float64  `json:"sentiment"`
	ConfidenceScore     float64  `json:"confidenceScore"`
	RecommendedActions  []string `json:"recommendedActions"`
	Method              Method   `json:"method"`
}

// Validate checks the documented value ranges of a scoring response.
func (r *Result) Validate() error {
	switch {
	case r.PurchaseProbability < 0 || r.PurchaseProbability > 1:
		return fmt.Errorf("purchaseProbability %v out of range: %w", r.PurchaseProbability, xerrors.ErrInvalidInput)
	case r.PriorityRank < 1 || r.PriorityRank > 10:
		return fmt.Errorf("priorityRank %d out of range: %w", r.PriorityRank, xerrors.ErrInvalidInput)
	case r.Sentiment < -1 || r.Sentiment > 1:
		return fmt.Errorf("sentiment %v out of range: %w", r.Sentiment, xerrors.ErrInvalidInput)
	case r.ConfidenceScore < 0 || r.ConfidenceScore > 1:
		return fmt.Errorf("confidenceScore %v out of range: %w", r.ConfidenceScore, xerrors.ErrInvalidInput)
	case r.Method != MethodPrimary && r.Method != MethodFallback:
		return fmt.Errorf("unknown scoring method %q: %w", r.Method, xerrors.ErrInvalidInput)
	}
	return nil
}
