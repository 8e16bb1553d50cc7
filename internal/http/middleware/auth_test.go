// README: Tests for bearer auth, role gating and panic recovery.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridebook/internal/http/middleware"
	"ridebook/internal/infra"
	"ridebook/internal/types"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.Token
	err   error
	seen  string
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.Token, error) {
	s.seen = raw
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		uid := middleware.CallerUID(c)
		role := middleware.CallerRole(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	r.GET("/driver-only", middleware.RequireRole(types.RoleDriver), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.Token{UID: "user1"}})
	w := do(r, "/test", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("expected error envelope, got %s", w.Body.String())
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.Token{UID: "user1"}})
	if w := do(r, "/test", "Token sometoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: errors.New("bad token")})
	if w := do(r, "/test", "Bearer invalidtoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.Token{
		UID:    "driver123",
		Claims: map[string]interface{}{"role": "driver"},
	}
	r := newTestRouter(&stubVerifier{token: token})
	w := do(r, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"driver123"`) || !strings.Contains(body, `"role":"driver"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestAuth_ValidToken_NoRoleClaim(t *testing.T) {
	token := &infra.Token{UID: "client456", Claims: map[string]interface{}{}}
	r := newTestRouter(&stubVerifier{token: token})
	w := do(r, "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"role":""`) {
		t.Errorf("expected empty role, got %s", w.Body.String())
	}
}

func TestAuth_UnknownRoleIsDropped(t *testing.T) {
	token := &infra.Token{UID: "x", Claims: map[string]interface{}{"role": "admin"}}
	r := newTestRouter(&stubVerifier{token: token})
	if w := do(r, "/test", "Bearer t"); !strings.Contains(w.Body.String(), `"role":""`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestAuth_QueryTokenForWebsocket(t *testing.T) {
	v := &stubVerifier{token: &infra.Token{UID: "client1", Claims: map[string]interface{}{"role": "client"}}}
	r := newTestRouter(v)
	w := do(r, "/test?token=abc", "")
	if w.Code != http.StatusOK || v.seen != "abc" {
		t.Fatalf("code %d, seen %q", w.Code, v.seen)
	}
}

func TestRequireRole(t *testing.T) {
	client := newTestRouter(&stubVerifier{token: &infra.Token{UID: "c1", Claims: map[string]interface{}{"role": "client"}}})
	if w := do(client, "/driver-only", "Bearer t"); w.Code != http.StatusForbidden {
		t.Errorf("client: expected 403, got %d", w.Code)
	}
	driver := newTestRouter(&stubVerifier{token: &infra.Token{UID: "d1", Claims: map[string]interface{}{"role": "driver"}}})
	if w := do(driver, "/driver-only", "Bearer t"); w.Code != http.StatusNoContent {
		t.Errorf("driver: expected 204, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Logging(zap.NewNop()), middleware.Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(r, "/panic", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
