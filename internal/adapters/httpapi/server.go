// Package httpapi is the HTTP surface of the issuer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pam-jwt-issuer/go-backend/internal/apierr"
	"pam-jwt-issuer/go-backend/internal/pipeline"
	"pam-jwt-issuer/go-backend/internal/platform/privacylog"
	"pam-jwt-issuer/go-backend/pkg/models"
)

const (
	DefaultAddr         = "0.0.0.0:8080"
	MaxBodyBytes        = 64 << 10
	RequestIDHeader     = "X-Request-Id"
	MsgMethodNotAllowed = "method not allowed"
	pemContentType      = "application/x-pem-file"
	shutdownTimeout     = 5 * time.Second
)

type TokenIssuer interface {
	Issue(ctx context.Context, req models.TokenRequest) (models.TokenResponse, error)
}

type PublicKeySource interface {
	PublicKeyPEM() ([]byte, error)
}

// Options configures NewServer. A nil Metrics handler leaves /metrics
// unrouted.
type Options struct {
	Addr      string
	Issuer    TokenIssuer
	PublicKey PublicKeySource
	Metrics   http.Handler
	Logger    *slog.Logger
}

type Server struct {
	httpServer *http.Server
	issuer     TokenIssuer
	publicKey  PublicKeySource
	log        *slog.Logger
}

func NewServer(opts Options) (*Server, error) {
	if opts.Issuer == nil {
		return nil, errors.New("httpapi: token issuer is required")
	}
	if opts.PublicKey == nil {
		return nil, errors.New("httpapi: public key source is required")
	}
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		issuer:    opts.Issuer,
		publicKey: opts.PublicKey,
		log:       privacylog.Ensure(opts.Logger),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/pubkey", s.handlePublicKey)
	mux.HandleFunc("/auth/token", s.handleToken)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve takes ownership of ln. In-flight requests get shutdownTimeout to
// finish after ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.InfoContext(ctx, "listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	pemBytes, err := s.publicKey.PublicKeyPEM()
	if err != nil {
		s.log.ErrorContext(r.Context(), "export public key", "request_id", pipeline.RequestID(r.Context()), "error", err)
		writeError(w, apierr.Internal("export public key", err))
		return
	}
	w.Header().Set("Content-Type", pemContentType)
	_, _ = w.Write(pemBytes)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	req, err := decodeTokenRequest(w, r)
	if err != nil {
		s.log.InfoContext(r.Context(), "token request body rejected",
			"request_id", pipeline.RequestID(r.Context()),
			"error", err,
		)
		writeError(w, apierr.Bad(apierr.MsgInvalidRequest, err))
		return
	}
	resp, err := s.issuer.Issue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// withRequestID honours a well-formed incoming id and otherwise mints one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = pipeline.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(pipeline.WithRequestID(r.Context(), id)))
		s.log.DebugContext(r.Context(), "http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func decodeTokenRequest(w http.ResponseWriter, r *http.Request) (models.TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var body struct {
		CiphertextB64 *string `json:"ciphertext_b64"`
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return models.TokenRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return models.TokenRequest{}, errors.New("trailing data after request object")
	}
	if body.CiphertextB64 == nil {
		return models.TokenRequest{}, errors.New("ciphertext_b64 is missing")
	}
	return models.TokenRequest{CiphertextB64: *body.CiphertextB64}, nil
}

func writeError(w http.ResponseWriter, err error) {
	e := apierr.From(err)
	writeJSON(w, e.Status(), models.ErrorResponse{Error: e.Public()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: MsgMethodNotAllowed})
}
