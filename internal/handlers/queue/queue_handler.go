// internal/handlers/queue/queue_handler.go
package queue

import (
	"context"
	"net/http"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/visit"
	"frontdesk-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type View interface {
	All() []visit.QueueEntry
	Pending() []visit.QueueEntry
	Active() []visit.QueueEntry
	ByStatus(status visit.Status) []visit.QueueEntry
	Counts() (pending, active int)
	Ready() bool
}

type Loads interface {
	Loads(ctx context.Context) ([]consultant.Load, error)
	Capacity() int
}

type QueueHandler struct {
	queue View
	loads Loads
}

func NewQueueHandler(queue View, loads Loads) *QueueHandler {
	return &QueueHandler{queue: queue, loads: loads}
}

type listing struct {
	// Ready is false until the first snapshot has loaded.
	Ready   bool               `json:"ready"`
	Entries []visit.QueueEntry `json:"entries"`
	Count   int                `json:"count"`
}

func (h *QueueHandler) list(c *gin.Context, entries []visit.QueueEntry) {
	if entries == nil {
		entries = []visit.QueueEntry{}
	}
	response.Success(c, http.StatusOK, "queue retrieved", listing{
		Ready:   h.queue.Ready(),
		Entries: entries,
		Count:   len(entries),
	})
}

func (h *QueueHandler) ListQueue(c *gin.Context) {
	h.list(c, h.queue.All())
}

func (h *QueueHandler) ListPending(c *gin.Context) {
	h.list(c, h.queue.Pending())
}

func (h *QueueHandler) ListActive(c *gin.Context) {
	h.list(c, h.queue.Active())
}

func (h *QueueHandler) ListByStatus(c *gin.Context) {
	status, ok := visit.ParseStatus(c.Param("status"))
	if !ok {
		response.Error(c, http.StatusBadRequest, "unknown visit status", nil)
		return
	}
	h.list(c, h.queue.ByStatus(status))
}

func (h *QueueHandler) Summary(c *gin.Context) {
	pending, active := h.queue.Counts()
	response.Success(c, http.StatusOK, "queue summary", gin.H{
		"ready":   h.queue.Ready(),
		"pending": pending,
		"active":  active,
	})
}

func (h *QueueHandler) ConsultantLoads(c *gin.Context) {
	loads, err := h.loads.Loads(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load consultants", err)
		return
	}
	response.Success(c, http.StatusOK, "consultant load", gin.H{
		"capacity":    h.loads.Capacity(),
		"consultants": loads,
	})
}
