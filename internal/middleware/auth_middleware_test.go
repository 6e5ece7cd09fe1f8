package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"frontdesk-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
)

type fakeVerifier map[string]*jwt.Claims

func (f fakeVerifier) Verify(token string) (*jwt.Claims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(fakeVerifier{
		"desk": {Roles: []string{jwt.RoleReceptionist}, RegisteredClaims: gojwt.RegisteredClaims{Subject: "s1"}},
		"boss": {Roles: []string{jwt.RoleManager}, RegisteredClaims: gojwt.RegisteredClaims{Subject: "s2"}},
	})

	r := gin.New()
	r.GET("/staff", append(m.Staff(), func(c *gin.Context) {
		id, _ := GetStaffID(c)
		c.String(http.StatusOK, id)
	})...)
	r.GET("/manager", append(m.ManagerOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)
	return r
}

func TestRoleGates(t *testing.T) {
	r := newRouter()

	cases := []struct {
		path, auth string
		want       int
	}{
		{"/staff", "", http.StatusUnauthorized},
		{"/staff", "Bearer nope", http.StatusUnauthorized},
		{"/staff", "Bearer desk", http.StatusOK},
		{"/manager", "Bearer desk", http.StatusForbidden},
		{"/manager", "Bearer boss", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s with %q: code = %d, want %d", tc.path, tc.auth, w.Code, tc.want)
		}
	}
}

func TestTokenFromQuery(t *testing.T) {
	r := newRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/staff?token=desk", nil))
	if w.Code != http.StatusOK || w.Body.String() != "s1" {
		t.Fatalf("code = %d body = %q", w.Code, w.Body.String())
	}
}
