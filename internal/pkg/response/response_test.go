package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{xerrors.ErrInvalidPhone, http.StatusBadRequest},
		{fmt.Errorf("name: %w", xerrors.ErrMissingRequiredField), http.StatusBadRequest},
		{xerrors.ErrInvalidTransition, http.StatusBadRequest},
		{fmt.Errorf("visit v1: %w", xerrors.ErrNotFound), http.StatusNotFound},
		{xerrors.ErrAlreadyAssigned, http.StatusConflict},
		{xerrors.ErrAssignmentInProgress, http.StatusConflict},
		{xerrors.ErrVisitNotPending, http.StatusConflict},
		{xerrors.ErrNoAvailableConsultant, http.StatusConflict},
		{xerrors.ErrUnauthorized, http.StatusUnauthorized},
		{xerrors.ErrForbidden, http.StatusForbidden},
		{xerrors.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestFromErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, "failed", fmt.Errorf("pq: relation visits does not exist"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error != xerrors.ErrInternal.Error() {
		t.Fatalf("unexpected body %+v", body)
	}
}
