// internal/handlers/visit/visit_handler.go
package visit

import (
	"context"
	"net/http"

	"frontdesk-service/internal/domain/scoring"
	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Intake interface {
	Submit(ctx context.Context, req visit.SubmitRequest) (*visit.SubmitResult, error)
}

type Status interface {
	GetVisit(ctx context.Context, id string) (*visit.Visit, error)
	UpdateStatus(ctx context.Context, id string, to visit.Status) (*visit.Visit, error)
}

type Assigner interface {
	Assign(ctx context.Context, visitID, consultantID string) (*visit.Visit, error)
	AssignLeastLoaded(ctx context.Context, visitID string) (*visit.Visit, error)
}

type Scorer interface {
	ScoreVisit(ctx context.Context, visitID string) (*scoring.Result, error)
}

type VisitHandler struct {
	intake   Intake
	status   Status
	assigner Assigner
	scorer   Scorer
}

func NewVisitHandler(intake Intake, status Status, assigner Assigner, scorer Scorer) *VisitHandler {
	return &VisitHandler{
		intake:   intake,
		status:   status,
		assigner: assigner,
		scorer:   scorer,
	}
}

// SubmitVisit records a walk-in. 201 when the backing store confirmed it,
// 202 when it was saved locally and will sync later.
func (h *VisitHandler) SubmitVisit(c *gin.Context) {
	var req visit.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.intake.Submit(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, "failed to record visit", err)
		return
	}

	if result.Confirmed {
		response.Success(c, http.StatusCreated, "visit recorded", result)
		return
	}
	response.Success(c, http.StatusAccepted, "saved, pending sync", result)
}

func (h *VisitHandler) GetVisit(c *gin.Context) {
	v, err := h.status.GetVisit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "visit not found", err)
		return
	}
	response.Success(c, http.StatusOK, "visit retrieved", v)
}

func (h *VisitHandler) UpdateStatus(c *gin.Context) {
	var req visit.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	v, err := h.status.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.FromError(c, "failed to update status", err)
		return
	}
	response.Success(c, http.StatusOK, "status updated", v)
}

func (h *VisitHandler) Assign(c *gin.Context) {
	var req visit.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	v, err := h.assigner.Assign(c.Request.Context(), c.Param("id"), req.ConsultantID)
	if err != nil {
		response.FromError(c, "failed to assign visit", err)
		return
	}
	response.Success(c, http.StatusOK, "visit assigned", v)
}

func (h *VisitHandler) AssignAuto(c *gin.Context) {
	v, err := h.assigner.AssignLeastLoaded(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to assign visit", err)
		return
	}
	response.Success(c, http.StatusOK, "visit assigned", v)
}

func (h *VisitHandler) Score(c *gin.Context) {
	result, err := h.scorer.ScoreVisit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to score visit", err)
		return
	}
	response.Success(c, http.StatusOK, "visit scored", result)
}
