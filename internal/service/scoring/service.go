package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"frontdesk-service/internal/domain/scoring"
	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/store"

	"go.uber.org/zap"
)

type Scorer interface {
	Score(ctx context.Context, req scoring.Request) (*scoring.Result, error)
}

type ScoringService struct {
	visits  store.VisitStore
	scorer  Scorer
	timeout time.Duration
	logger  *zap.Logger
}

// NewScoringService returns a service that refuses every call when scorer is
// nil. timeout bounds each backing-store call; the scorer has its own.
func NewScoringService(visits store.VisitStore, scorer Scorer, timeout time.Duration, logger *zap.Logger) *ScoringService {
	return &ScoringService{visits: visits, scorer: scorer, timeout: timeout, logger: logger}
}

// ScoreVisit asks the scoring service about a visit and stores the payload on
// the visit as returned.
func (s *ScoringService) ScoreVisit(ctx context.Context, visitID string) (*scoring.Result, error) {
	if s.scorer == nil {
		return nil, fmt.Errorf("scoring is not configured: %w", xerrors.ErrInternal)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	entry, err := s.visits.GetQueueEntry(readCtx, visitID)
	cancel()
	if err != nil {
		return nil, err
	}

	result, err := s.scorer.Score(ctx, scoring.Request{
		VisitID:         entry.ID,
		CustomerSummary: customerSummary(entry.CustomerName, entry.CustomerPhone),
		VisitSummary:    visitSummary(entry.Status, entry.VehicleInterest, entry.Notes),
	})
	if err != nil {
		s.logger.Warn("scoring failed", zap.String("visit_id", visitID), zap.Error(err))
		return nil, err
	}
	if err := result.Validate(); err != nil {
		s.logger.Warn("scoring response rejected", zap.String("visit_id", visitID), zap.Error(err))
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	saveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.visits.SaveScore(saveCtx, visitID, payload); err != nil {
		return nil, fmt.Errorf("failed to save score: %w", err)
	}

	s.logger.Info("visit scored",
		zap.String("visit_id", visitID),
		zap.Int("priority_rank", result.PriorityRank),
		zap.String("method", string(result.Method)),
	)
	return result, nil
}

func customerSummary(name, phone string) string {
	return fmt.Sprintf("%s (%s)", name, phone)
}

func visitSummary(status visit.Status, interest json.RawMessage, notes *string) string {
	parts := []string{"status: " + string(status)}
	if len(interest) > 0 {
		parts = append(parts, "vehicle interest: "+string(interest))
	}
	if notes != nil && *notes != "" {
		parts = append(parts, "notes: "+*notes)
	}
	return strings.Join(parts, "; ")
}
