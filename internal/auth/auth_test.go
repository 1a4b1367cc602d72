package auth

import (
	"chat-gateway/internal/config"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testHandlers() *Handlers {
	return NewHandlers(nil, config.AuthConfig{
		JWTSecret:       []byte("test-secret-that-is-long-enough-32ch"),
		TokenExpiration: time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	h := testHandlers()

	token, err := h.GenerateToken("demo")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	claims, err := h.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if claims.Username != "demo" {
		t.Errorf("Expected username 'demo', got %q", claims.Username)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	h := testHandlers()
	other := NewHandlers(nil, config.AuthConfig{
		JWTSecret:       []byte("a-different-secret-also-32-chars-xx"),
		TokenExpiration: time.Hour,
	})

	token, err := other.GenerateToken("demo")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	if _, err := h.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail for a token signed with another secret")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	h := NewHandlers(nil, config.AuthConfig{
		JWTSecret:       []byte("test-secret-that-is-long-enough-32ch"),
		TokenExpiration: -time.Minute,
	})

	token, err := h.GenerateToken("demo")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	if _, err := testHandlers().ValidateToken(token); err == nil {
		t.Error("Expected validation to fail for an expired token")
	}
}

func TestMiddleware(t *testing.T) {
	h := testHandlers()

	var gotUser string
	protected := h.Middleware(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Context().Value(UserContextKey).(string)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token passes through", func(t *testing.T) {
		token, _ := h.GenerateToken("demo")
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
		if gotUser != "demo" {
			t.Errorf("Expected 'demo' in context, got %q", gotUser)
		}
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc123")
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})
}
