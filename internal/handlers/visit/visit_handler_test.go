package visit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"frontdesk-service/internal/domain/consultant"
	"frontdesk-service/internal/domain/scoring"
	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/pendinglog"
	"frontdesk-service/internal/repository/memory"
	"frontdesk-service/internal/service/assignment"
	customersvc "frontdesk-service/internal/service/customer"
	"frontdesk-service/internal/service/intake"
	"frontdesk-service/internal/service/queue"
	visitsvc "frontdesk-service/internal/service/visit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type online bool

func (o online) Online() bool { return bool(o) }

type stubScorer struct{}

func (stubScorer) ScoreVisit(ctx context.Context, id string) (*scoring.Result, error) {
	return nil, xerrors.ErrInternal
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testAPI struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestAPI(t *testing.T, up bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	st := memory.NewStore()
	log, err := pendinglog.Open(":memory:")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	q := queue.NewStore(st, logger)
	resolver := customersvc.NewIdentityResolver(st, "254", logger)
	in := intake.NewIntakeService(resolver, st, log, online(up), time.Second, logger)
	status := visitsvc.NewStatusService(st, q, time.Second, logger)
	engine := assignment.NewEngine(st, st, q, assignment.NewLoadTracker(q, st, 3), assignment.NewLocalClaims(), time.Second, logger)

	h := NewVisitHandler(in, status, engine, stubScorer{})
	r := gin.New()
	r.POST("/visits", h.SubmitVisit)
	r.GET("/visits/:id", h.GetVisit)
	r.PUT("/visits/:id/status", h.UpdateStatus)
	r.POST("/visits/:id/assign", h.Assign)
	r.POST("/visits/:id/assign/auto", h.AssignAuto)
	r.POST("/visits/:id/score", h.Score)
	return &testAPI{router: r, store: st}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func (a *testAPI) submit(t *testing.T) string {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/visits", visit.SubmitRequest{Name: "Wanjiru", Phone: "0791234567"})
	if code != http.StatusCreated {
		t.Fatalf("submit: code %d, %+v", code, env)
	}
	var res visit.SubmitResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Confirmed || res.VisitID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	return res.VisitID
}

func TestSubmitOfflineIsAccepted(t *testing.T) {
	api := newTestAPI(t, false)
	code, env := api.do(t, http.MethodPost, "/visits", visit.SubmitRequest{Name: "Wanjiru", Phone: "0791234567"})
	if code != http.StatusAccepted {
		t.Fatalf("code %d, %+v", code, env)
	}
	var res visit.SubmitResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Confirmed || res.LocalID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitInvalidPhone(t *testing.T) {
	api := newTestAPI(t, true)
	code, env := api.do(t, http.MethodPost, "/visits", visit.SubmitRequest{Name: "Wanjiru", Phone: "12"})
	if code != http.StatusBadRequest || env.Success {
		t.Fatalf("code %d, %+v", code, env)
	}
}

func TestStatusTransitions(t *testing.T) {
	api := newTestAPI(t, true)
	id := api.submit(t)

	if code, env := api.do(t, http.MethodPut, "/visits/"+id+"/status", visit.UpdateStatusRequest{Status: visit.StatusContacted}); code != http.StatusOK {
		t.Fatalf("contacted: %d %+v", code, env)
	}
	if code, _ := api.do(t, http.MethodPut, "/visits/"+id+"/status", visit.UpdateStatusRequest{Status: visit.StatusAssigned}); code != http.StatusBadRequest {
		t.Fatalf("direct assigned: code %d", code)
	}
	if code, _ := api.do(t, http.MethodGet, "/visits/missing", nil); code != http.StatusNotFound {
		t.Fatalf("missing visit: code %d", code)
	}
}

func TestAssignFlow(t *testing.T) {
	api := newTestAPI(t, true)
	id := api.submit(t)

	if code, _ := api.do(t, http.MethodPost, "/visits/"+id+"/assign/auto", nil); code != http.StatusConflict {
		t.Fatalf("no consultants: code %d", code)
	}

	api.store.AddConsultant(consultant.Consultant{ID: "c1", Name: "Otieno", IsActive: true})
	code, env := api.do(t, http.MethodPost, "/visits/"+id+"/assign/auto", nil)
	if code != http.StatusOK {
		t.Fatalf("auto assign: %d %+v", code, env)
	}
	var v visit.Visit
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatal(err)
	}
	if v.ConsultantID == nil || *v.ConsultantID != "c1" || v.Status != visit.StatusAssigned {
		t.Fatalf("unexpected visit %+v", v)
	}

	if code, _ := api.do(t, http.MethodPost, "/visits/"+id+"/assign", visit.AssignRequest{ConsultantID: "c1"}); code != http.StatusConflict {
		t.Fatalf("second assign: code %d", code)
	}
	if code, _ := api.do(t, http.MethodPost, "/visits/"+id+"/assign", map[string]string{}); code != http.StatusBadRequest {
		t.Fatalf("missing consultant id: code %d", code)
	}
}

func TestScoreFailureIsInternal(t *testing.T) {
	api := newTestAPI(t, true)
	id := api.submit(t)
	code, env := api.do(t, http.MethodPost, "/visits/"+id+"/score", nil)
	if code != http.StatusInternalServerError || env.Error != xerrors.ErrInternal.Error() {
		t.Fatalf("code %d, %+v", code, env)
	}
}
