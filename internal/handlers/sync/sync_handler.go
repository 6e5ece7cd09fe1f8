// internal/handlers/sync/sync_handler.go
package sync

import (
	"context"
	"net/http"

	"frontdesk-service/internal/pendinglog"
	"frontdesk-service/internal/pkg/response"
	syncsvc "frontdesk-service/internal/service/sync"

	"github.com/gin-gonic/gin"
)

type Pending interface {
	Pending(ctx context.Context) ([]pendinglog.Entry, error)
	NeedsAttention(ctx context.Context) ([]pendinglog.Entry, error)
}

type Drainer interface {
	Drain(ctx context.Context) (syncsvc.Result, error)
}

type Connectivity interface {
	Online() bool
}

type SyncHandler struct {
	pending Pending
	drainer Drainer
	conn    Connectivity
}

func NewSyncHandler(pending Pending, drainer Drainer, conn Connectivity) *SyncHandler {
	return &SyncHandler{pending: pending, drainer: drainer, conn: conn}
}

// ListPending shows intakes saved on this device and not yet confirmed.
func (h *SyncHandler) ListPending(c *gin.Context) {
	entries, err := h.pending.Pending(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to read pending writes", err)
		return
	}
	if entries == nil {
		entries = []pendinglog.Entry{}
	}
	response.Success(c, http.StatusOK, "saved, pending sync", gin.H{"entries": entries, "count": len(entries)})
}

func (h *SyncHandler) ListAttention(c *gin.Context) {
	entries, err := h.pending.NeedsAttention(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to read pending writes", err)
		return
	}
	if entries == nil {
		entries = []pendinglog.Entry{}
	}
	response.Success(c, http.StatusOK, "requires manual review", gin.H{"entries": entries, "count": len(entries)})
}

func (h *SyncHandler) Drain(c *gin.Context) {
	if !h.conn.Online() {
		response.Error(c, http.StatusServiceUnavailable, "backing store unreachable, drain deferred", nil)
		return
	}
	result, err := h.drainer.Drain(c.Request.Context())
	if err != nil {
		response.FromError(c, "drain failed", err)
		return
	}
	response.Success(c, http.StatusOK, "drain complete", result)
}

func (h *SyncHandler) Connectivity(c *gin.Context) {
	response.Success(c, http.StatusOK, "connectivity", gin.H{"online": h.conn.Online()})
}
