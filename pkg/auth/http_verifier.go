package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const verifierTracerName = "codesync/auth"

// HTTPVerifier validates credentials against a remote identity service.
//
// The service receives POST {"token": "<credential>"} and answers
// 200 {"uid": "<user id>"} for a valid credential, or 401 otherwise.
type HTTPVerifier struct {
	// URL is the verification endpoint.
	URL string

	// Client is the HTTP client to use. Nil means a client with a
	// 5 second timeout.
	Client *http.Client

	tracer trace.Tracer
}

// NewHTTPVerifier creates a verifier for the given endpoint.
func NewHTTPVerifier(url string) *HTTPVerifier {
	return &HTTPVerifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
		tracer: otel.Tracer(verifierTracerName),
	}
}

// Verify implements Verifier. The remote call is the only suspension
// point of the upgrade path, so it carries the request context and is
// traced.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}

	tracer := v.tracer
	if tracer == nil {
		tracer = otel.Tracer(verifierTracerName)
	}
	ctx, span := tracer.Start(ctx, "auth.verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("auth.endpoint", v.URL)))
	defer span.End()

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Identity{}, fmt.Errorf("auth: verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return Identity{}, ErrInvalidToken
	}

	var decoded struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Identity{}, fmt.Errorf("auth: decode response: %w", err)
	}
	if decoded.UID == "" {
		return Identity{}, ErrInvalidToken
	}

	span.SetStatus(codes.Ok, "")
	return Identity{UID: decoded.UID}, nil
}

var _ Verifier = (*HTTPVerifier)(nil)
