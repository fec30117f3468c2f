package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer([]byte("test-secret"), time.Hour, "billing-test")
}

func testPrincipal() Principal {
	return Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: RoleBiller}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := testIssuer()
	p := testPrincipal()

	token, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != p {
		t.Errorf("expected %+v, got %+v", p, got)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := testIssuer().Issue(testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewTokenIssuer([]byte("other-secret"), time.Hour, "billing-test")
	if _, err := other.Verify(token); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute, "billing-test")
	token, err := issuer.Issue(testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expected verification failure for expired token")
	}
}

func TestVerify_InvalidRole(t *testing.T) {
	issuer := testIssuer()
	p := testPrincipal()
	p.Role = "Superuser"
	token, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expected verification failure for unknown role")
	}
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestMiddleware_MissingHeader(t *testing.T) {
	rec := doRequest(t, Middleware(testIssuer()), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.Issue(testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := doRequest(t, Middleware(issuer), "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"admitted", RoleBiller, []string{RoleAdmin, RoleBiller}, http.StatusOK},
		{"rejected", RoleFrontDesk, []string{RoleAdmin, RoleBiller}, http.StatusForbidden},
		{"admin not implicit", RoleAdmin, []string{RoleBiller}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			p := testPrincipal()
			p.Role = tt.role
			req = req.WithContext(WithPrincipal(req.Context(), p))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := RequireRole(tt.allowed...)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			if err := handler(c); err != nil {
				e.HTTPErrorHandler(err, c)
			}
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "password123") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected mismatched password to fail")
	}
}
