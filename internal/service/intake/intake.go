// internal/service/intake/intake.go
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"frontdesk-service/internal/domain/customer"
	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/pendinglog"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Resolver interface {
	Resolve(ctx context.Context, req customer.ResolveRequest) (string, error)
	NormalizePhone(raw string) (string, error)
}

type Connectivity interface {
	Online() bool
}

type PendingLog interface {
	Append(ctx context.Context, e pendinglog.Entry) error
	Outstanding(ctx context.Context) ([]pendinglog.Entry, error)
	Attention(ctx context.Context) ([]pendinglog.Entry, error)
	Counts(ctx context.Context) (outstanding, attention int, err error)
}

type IntakeService struct {
	resolver     Resolver
	visits       store.VisitStore
	log          PendingLog
	connectivity Connectivity
	timeout      time.Duration
	logger       *zap.Logger
}

func NewIntakeService(
	resolver Resolver,
	visits store.VisitStore,
	log PendingLog,
	connectivity Connectivity,
	timeout time.Duration,
	logger *zap.Logger,
) *IntakeService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntakeService{
		resolver:     resolver,
		visits:       visits,
		log:          log,
		connectivity: connectivity,
		timeout:      timeout,
		logger:       logger,
	}
}

// Submit records a visit. It only fails for invalid requests or when the
// local log itself cannot be written; store trouble routes the request to the
// pending log and returns an unconfirmed result.
func (s *IntakeService) Submit(ctx context.Context, req visit.SubmitRequest) (*visit.SubmitResult, error) {
	normalized, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	localID := ulid.Make().String()

	if s.connectivity.Online() {
		writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		v, err := s.Confirm(writeCtx, localID, normalized)
		cancel()

		if err == nil {
			return &visit.SubmitResult{Confirmed: true, VisitID: v.ID}, nil
		}
		if xerrors.IsValidation(err) {
			return nil, err
		}
		s.logger.Warn("visit create failed, saving locally",
			zap.String("local_id", localID),
			zap.Error(err),
		)
	}

	entry := pendinglog.Entry{
		LocalID:    localID,
		Request:    normalized,
		EnqueuedAt: time.Now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append pending visit", zap.String("local_id", localID), zap.Error(err))
		return nil, fmt.Errorf("failed to save visit locally: %w", err)
	}

	s.logger.Info("visit saved, pending sync", zap.String("local_id", localID))
	return &visit.SubmitResult{Confirmed: false, LocalID: localID}, nil
}

// Confirm resolves the customer and creates the visit under clientRef. It is
// safe to repeat with the same clientRef.
func (s *IntakeService) Confirm(ctx context.Context, clientRef string, req visit.SubmitRequest) (*visit.Visit, error) {
	customerID, err := s.resolver.Resolve(ctx, customer.ResolveRequest{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Language: req.Language,
	})
	if err != nil {
		return nil, err
	}

	var notes *string
	if n := strings.TrimSpace(req.Notes); n != "" {
		notes = &n
	}

	v, created, err := s.visits.CreateVisit(ctx, visit.CreateInput{
		ClientRef:       clientRef,
		CustomerID:      customerID,
		VehicleInterest: req.VehicleInterest,
		Notes:           notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create visit: %w", err)
	}

	s.logger.Info("visit confirmed",
		zap.String("visit_id", v.ID),
		zap.String("client_ref", clientRef),
		zap.Bool("created", created),
	)
	return v, nil
}

// Pending lists the submissions saved locally and still awaiting sync.
func (s *IntakeService) Pending(ctx context.Context) ([]pendinglog.Entry, error) {
	return s.log.Outstanding(ctx)
}

// NeedsAttention lists the submissions that stopped retrying.
func (s *IntakeService) NeedsAttention(ctx context.Context) ([]pendinglog.Entry, error) {
	return s.log.Attention(ctx)
}

func (s *IntakeService) PendingCounts(ctx context.Context) (outstanding, attention int, err error) {
	return s.log.Counts(ctx)
}

func (s *IntakeService) validate(req visit.SubmitRequest) (visit.SubmitRequest, error) {
	if strings.TrimSpace(req.Name) == "" {
		return req, fmt.Errorf("name: %w", xerrors.ErrMissingRequiredField)
	}
	if req.Language == "" {
		req.Language = customer.LanguagePrimary
	}
	if !req.Language.Valid() {
		return req, fmt.Errorf("language %q: %w", req.Language, xerrors.ErrInvalidInput)
	}
	phone, err := s.resolver.NormalizePhone(req.Phone)
	if err != nil {
		return req, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = phone
	req.Email = strings.TrimSpace(req.Email)
	return req, nil
}
