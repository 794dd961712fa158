// Package exec implements the remote code-execution proxy: it forwards
// client-submitted source code to a third-party execution API and
// reshapes the response. It shares the relay's verifier and development
// bypass but is otherwise independent of the synchronization core.
package exec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/codesync-dev/codesync/pkg/auth"
)

// DefaultAPIURL is the public Piston execution endpoint.
const DefaultAPIURL = "https://emkc.org/api/v2/piston/execute"

const execTracerName = "codesync/exec"

// languageVersions pins the runtime version requested per language.
var languageVersions = map[string]string{
	"python":     "3.10.0",
	"javascript": "18.15.0",
	"typescript": "5.0.3",
	"java":       "15.0.2",
	"cpp":        "10.2.0",
	"rust":       "1.68.2",
	"go":         "1.16.15",
}

// languageFiles names the source file submitted per language.
var languageFiles = map[string]string{
	"python":     "main.py",
	"javascript": "main.js",
	"typescript": "main.ts",
	"java":       "Main.java",
	"cpp":        "main.cpp",
	"rust":       "main.rs",
	"go":         "main.go",
}

const (
	fallbackVersion = "3.10.0"
	fallbackFile    = "main.py"
)

// Request is the client-facing execution request.
type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

// Response is the client-facing execution result.
type Response struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	Language string `json:"language,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Config configures the execution proxy.
type Config struct {
	// APIURL is the upstream execution endpoint.
	// Default: DefaultAPIURL.
	APIURL string

	// RequestsPerMinute limits executions per client IP.
	// Default: 20.
	RequestsPerMinute int

	// StrictAuth mirrors the gateway policy: when false, requests
	// without a valid credential run as the development identity.
	StrictAuth bool

	// Timeout bounds the upstream call.
	// Default: 30 seconds.
	Timeout time.Duration
}

// Handler proxies execution requests to the upstream API.
type Handler struct {
	config   Config
	verifier auth.Verifier
	client   *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHandler creates the proxy. verifier may not be nil.
func NewHandler(config Config, verifier auth.Verifier) *Handler {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 20
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Handler{
		config:   config,
		verifier: verifier,
		client:   &http.Client{Timeout: config.Timeout},
		tracer:   otel.Tracer(execTracerName),
		logger:   slog.Default().With("component", "exec"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		status := http.StatusUnauthorized
		if code, ok := auth.StatusCode(err); ok {
			status = code
		}
		writeJSON(w, status, Response{Success: false, Error: "unauthorized"})
		return
	}

	if !h.allow(clientIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, Response{
			Success: false,
			Error:   "too many requests, please slow down",
		})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if req.Code == "" || req.Language == "" {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "code and language are required"})
		return
	}

	h.logger.Info("executing code",
		"language", req.Language,
		"code_len", len(req.Code),
		"uid", identity.UID)

	resp, err := h.execute(r, req)
	if err != nil {
		h.logger.Error("execution failed", "language", req.Language, "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to execute code",
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authenticate(r *http.Request) (auth.Identity, error) {
	identity, err := h.verifier.Verify(r.Context(), auth.TokenFromRequest(r))
	if err == nil {
		return identity, nil
	}
	if !h.config.StrictAuth && (errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrInvalidToken)) {
		h.logger.Warn("credential missing or invalid, using development identity", "error", err)
		return auth.DevIdentity, nil
	}
	return auth.Identity{}, err
}

// allow checks the per-IP rate limit.
func (h *Handler) allow(ip string) bool {
	h.mu.Lock()
	limiter, ok := h.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(h.config.RequestsPerMinute)/60.0), h.config.RequestsPerMinute)
		h.limiters[ip] = limiter
	}
	h.mu.Unlock()
	return limiter.Allow()
}

// pistonRequest is the upstream API request shape.
type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin"`
}

type pistonFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// pistonResponse is the upstream API response shape.
type pistonResponse struct {
	Run     *pistonStage `json:"run"`
	Compile *pistonStage `json:"compile"`
}

type pistonStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// execute forwards the request upstream and reshapes the result.
func (h *Handler) execute(r *http.Request, req Request) (Response, error) {
	version, ok := languageVersions[req.Language]
	if !ok {
		version = fallbackVersion
	}
	fileName, ok := languageFiles[req.Language]
	if !ok {
		fileName = fallbackFile
	}

	ctx, span := h.tracer.Start(r.Context(), "exec.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("exec.language", req.Language),
			attribute.String("exec.version", version),
		))
	defer span.End()

	body, err := json.Marshal(pistonRequest{
		Language: req.Language,
		Version:  version,
		Files:    []pistonFile{{Name: fileName, Content: req.Code}},
		Stdin:    req.Input,
	})
	if err != nil {
		return Response{}, fmt.Errorf("exec: encode upstream request: %w", err)
	}

	upstream, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("exec: build upstream request: %w", err)
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(upstream)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, fmt.Errorf("exec: upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return Response{}, fmt.Errorf("exec: upstream status %s", resp.Status)
	}

	var decoded pistonResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("exec: decode upstream response: %w", err)
	}
	span.SetStatus(codes.Ok, "")

	var stderr, stdout string
	exitCode := -1
	if decoded.Compile != nil {
		stderr = decoded.Compile.Stderr
		stdout = decoded.Compile.Stdout
	}
	if decoded.Run != nil {
		if stderr == "" {
			stderr = decoded.Run.Stderr
		}
		if decoded.Run.Stdout != "" {
			stdout = decoded.Run.Stdout
		}
		exitCode = decoded.Run.Code
	}

	output := strings.TrimSpace(stdout)
	if output == "" {
		output = "No output"
	}
	return Response{
		Success:  stderr == "" && exitCode == 0,
		Output:   output,
		Error:    strings.TrimSpace(stderr),
		Language: req.Language,
		Version:  version,
	}, nil
}

// clientIP extracts the caller address for rate limiting.
func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
