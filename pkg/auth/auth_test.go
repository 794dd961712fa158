package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"query parameter", "/room?token=abc", "", "abc"},
		{"bearer header", "/room", "Bearer xyz", "xyz"},
		{"query wins over header", "/room?token=abc", "Bearer xyz", "abc"},
		{"no credential", "/room", "", ""},
		{"malformed header scheme", "/room", "Basic xyz", ""},
		{"empty query value falls through", "/room?token=", "Bearer xyz", "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{Token: "secret", UID: "user-1"}

	tests := []struct {
		name    string
		token   string
		wantUID string
		wantErr error
	}{
		{"valid token", "secret", "user-1", nil},
		{"missing token", "", "", ErrUnauthorized},
		{"wrong token", "nope", "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if identity.UID != tt.wantUID {
				t.Errorf("UID = %q, want %q", identity.UID, tt.wantUID)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		ok     bool
	}{
		{"nil", nil, 0, false},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, true},
		{"invalid token", ErrInvalidToken, http.StatusUnauthorized, true},
		{"wrapped", errors.Join(errors.New("context"), ErrInvalidToken), http.StatusUnauthorized, true},
		{"unrelated", errors.New("boom"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := StatusCode(tt.err)
			if status != tt.status || ok != tt.ok {
				t.Errorf("StatusCode() = (%d, %v), want (%d, %v)", status, ok, tt.status, tt.ok)
			}
		})
	}
}

func TestDevIdentity(t *testing.T) {
	if DevIdentity.UID != "dev-local" || !DevIdentity.Dev {
		t.Errorf("DevIdentity = %+v", DevIdentity)
	}
}
