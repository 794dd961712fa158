package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func verifyService(t *testing.T, validToken, uid string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Token != validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"uid": uid})
	}))
}

func TestHTTPVerifierValidToken(t *testing.T) {
	srv := verifyService(t, "good-token", "user-42")
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	identity, err := v.Verify(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UID != "user-42" {
		t.Errorf("UID = %q, want %q", identity.UID, "user-42")
	}
	if identity.Dev {
		t.Error("verified identity marked as dev")
	}
}

func TestHTTPVerifierRejectedToken(t *testing.T) {
	srv := verifyService(t, "good-token", "user-42")
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	if _, err := v.Verify(context.Background(), "bad-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestHTTPVerifierEmptyTokenShortCircuits(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify error = %v, want %v", err, ErrUnauthorized)
	}
	if called {
		t.Error("empty token reached the verification service")
	}
}

func TestHTTPVerifierEmptyUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"uid": ""})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	if _, err := v.Verify(context.Background(), "token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestHTTPVerifierUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // reject connections

	v := NewHTTPVerifier(srv.URL)
	_, err := v.Verify(context.Background(), "token")
	if err == nil {
		t.Fatal("Verify succeeded against a closed service")
	}
	// A transport failure is not a credential failure: strict and dev
	// mode both treat it as fatal.
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUnauthorized) {
		t.Errorf("transport failure mapped to credential error: %v", err)
	}
}
