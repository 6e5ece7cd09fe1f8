package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"frontdesk-service/internal/pendinglog"
	syncsvc "frontdesk-service/internal/service/sync"

	"github.com/gin-gonic/gin"
)

type fakePending struct {
	pending, attention []pendinglog.Entry
}

func (f fakePending) Pending(ctx context.Context) ([]pendinglog.Entry, error) {
	return f.pending, nil
}

func (f fakePending) NeedsAttention(ctx context.Context) ([]pendinglog.Entry, error) {
	return f.attention, nil
}

type fakeDrainer struct {
	calls int
}

func (f *fakeDrainer) Drain(ctx context.Context) (syncsvc.Result, error) {
	f.calls++
	return syncsvc.Result{Succeeded: []string{"l1"}, Outstanding: 1}, nil
}

type conn bool

func (c conn) Online() bool { return bool(c) }

func router(h *SyncHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sync/pending", h.ListPending)
	r.GET("/sync/attention", h.ListAttention)
	r.POST("/sync/drain", h.Drain)
	r.GET("/connectivity", h.Connectivity)
	return r
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestListings(t *testing.T) {
	pending := fakePending{
		pending:   []pendinglog.Entry{{LocalID: "l1"}, {LocalID: "l2"}},
		attention: nil,
	}
	r := router(NewSyncHandler(pending, &fakeDrainer{}, conn(true)))

	var body struct {
		Data struct {
			Entries []pendinglog.Entry `json:"entries"`
			Count   int                `json:"count"`
		} `json:"data"`
	}
	w := serve(r, http.MethodGet, "/sync/pending")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || body.Data.Count != 2 || body.Data.Entries[0].LocalID != "l1" {
		t.Fatalf("pending: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/sync/attention")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Count != 0 || body.Data.Entries == nil {
		t.Fatalf("attention should be an empty list: %s", w.Body.String())
	}
}

func TestDrainRequiresConnectivity(t *testing.T) {
	d := &fakeDrainer{}
	offline := router(NewSyncHandler(fakePending{}, d, conn(false)))
	if w := serve(offline, http.MethodPost, "/sync/drain"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("offline drain: code %d", w.Code)
	}
	if d.calls != 0 {
		t.Fatal("drain ran while offline")
	}

	online := router(NewSyncHandler(fakePending{}, d, conn(true)))
	if w := serve(online, http.MethodPost, "/sync/drain"); w.Code != http.StatusOK {
		t.Fatalf("online drain: code %d", w.Code)
	}
	if d.calls != 1 {
		t.Fatalf("drain calls = %d", d.calls)
	}

	w := serve(online, http.MethodGet, "/connectivity")
	if w.Code != http.StatusOK || !json.Valid(w.Body.Bytes()) {
		t.Fatalf("connectivity: %d", w.Code)
	}
}
