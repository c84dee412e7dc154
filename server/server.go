// Package server exposes the supervisor and the required-check selection over
// HTTP.
//
// GET /flash-progress starts a run and streams its events, one JSON object per
// line, or as Server-Sent Events when the client asks for text/event-stream.
// Closing the connection cancels the run.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
	"github.com/flashjig/flashjig/supervisor"
)

// Supervisor is the part of supervisor.Supervisor the server drives.
type Supervisor interface {
	Start(ctx context.Context) (*supervisor.Run, error)
	Cancel() error
	Status() supervisor.Status
}

// CheckStore persists the required-check selection.
type CheckStore interface {
	Load(ctx context.Context) (checks.Config, error)
	Save(ctx context.Context, cfg checks.Config) error
	Set(ctx context.Context, name string, required bool) error
	Toggle(ctx context.Context, name string) (bool, error)
}

// KillResponse is the body of POST /kill-process.
type KillResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckRequest is the body of PUT /required-checks/{name}.
type CheckRequest struct {
	Required bool `json:"required"`
}

// CheckResponse reports the new state of a single check.
type CheckResponse struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

const (
	MessageKilled   = "Process killed"
	MessageNoActive = "No active process"
)

type Server struct {
	logger zerolog.Logger
	sup    Supervisor
	store  CheckStore
}

func New(logger zerolog.Logger, sup Supervisor, store CheckStore) *Server {
	return &Server{logger: logger, sup: sup, store: store}
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /flash-progress", s.handleFlashProgress)
	mux.HandleFunc("POST /kill-process", s.handleKill)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /required-checks", s.handleGetChecks)
	mux.HandleFunc("PUT /required-checks", s.handlePutChecks)
	mux.HandleFunc("PUT /required-checks/{name}", s.handleSetCheck)
	mux.HandleFunc("POST /required-checks/{name}/toggle", s.handleToggleCheck)
	return s.withCORS(mux)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// and kills any run still in progress.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.sup.Cancel(); err == nil {
			s.logger.Info().Msg("Killed active run on shutdown")
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("Server listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("Request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFlashProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	out := eventWriter{w: w, sse: WantsSSE(r)}
	w.Header().Set("Content-Type", out.contentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	run, err := s.sup.Start(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rejected flash run")
		_ = out.write(model.Fatal(err.Error()))
		_ = out.write(model.AllDone())
		flusher.Flush()
		return
	}

	logger := s.logger.With().Str("run", run.ID()[:8]).Logger()
	logger.Info().Str("remote", r.RemoteAddr).Msg("Streaming flash run")

	for {
		ev, err := run.Next(r.Context())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			logger.Info().Msg("Client disconnected, cancelling run")
			run.Cancel()
			return
		}
		if err := out.write(ev); err != nil {
			logger.Info().Err(err).Msg("Client write failed, cancelling run")
			run.Cancel()
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	resp := KillResponse{Success: true, Message: MessageKilled}
	if err := s.sup.Cancel(); err != nil {
		resp.Message = MessageNoActive
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Server is running",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) handleGetChecks(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.Load(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutChecks(w http.ResponseWriter, r *http.Request) {
	var cfg checks.Config
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid check selection: %w", err))
		return
	}
	for name := range cfg {
		if strings.TrimSpace(name) == "" {
			s.writeError(w, http.StatusBadRequest, errors.New("check names must not be empty"))
			return
		}
	}
	if err := s.store.Save(r.Context(), cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.handleGetChecks(w, r)
}

func (s *Server) handleSetCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("check name is required"))
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid check request: %w", err))
		return
	}
	if err := s.store.Set(r.Context(), name, req.Required); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().Str("check", name).Bool("required", req.Required).Msg("Set required check")
	s.writeJSON(w, http.StatusOK, CheckResponse{Name: name, Required: req.Required})
}

func (s *Server) handleToggleCheck(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("check name is required"))
		return
	}
	required, err := s.store.Toggle(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info().Str("check", name).Bool("required", required).Msg("Toggled required check")
	s.writeJSON(w, http.StatusOK, CheckResponse{Name: name, Required: required})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Warn().Err(err).Int("code", code).Msg("Request failed")
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
