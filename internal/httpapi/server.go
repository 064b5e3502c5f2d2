package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/minerva/internal/config"
	"github.com/antoniostano/minerva/internal/observability"
	"github.com/antoniostano/minerva/internal/orchestrator"
)

type Server struct {
	cfg      config.Config
	svc      *orchestrator.Service
	bus      ObserverBus
	metrics  *observability.Metrics
	window   *observability.PipelineWindow
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc *orchestrator.Service, bus ObserverBus, metrics *observability.Metrics, window *observability.PipelineWindow) *Server {
	return &Server{
		cfg:     cfg,
		svc:     svc,
		bus:     bus,
		metrics: metrics,
		window:  window,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections may observe a
				// student session unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/pipeline", s.handlePerfPipeline)

	r.Post("/v1/orchestrate", s.handleDispatch)
	r.Get("/v1/orchestrate/{id}", s.handleStatus)
	r.Post("/v1/orchestrate/{id}/wait", s.handleWait)
	r.Get("/v1/session/{id}/filler", s.handleFiller)

	r.Post("/v1/session", s.handleOpenSession)
	r.Post("/v1/session/{id}/close", s.handleCloseSession)

	r.Post("/v1/escalate", s.handleEscalate)
	r.Get("/ws/teacher/{session_id}", s.handleObserverWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfPipeline(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondError(w, http.StatusNotFound, "perf_disabled", "pipeline window not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

type dispatchRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Text = strings.TrimSpace(req.Text)
	if req.SessionID == "" || req.Text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and text are required")
		return
	}

	jobID := s.svc.Dispatch(req.SessionID, req.Text)
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Status(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.WaitTimeoutMax
	if raw := strings.TrimSpace(r.URL.Query().Get("timeout_s")); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_timeout", "timeout_s must be a positive number")
			return
		}
		timeout = time.Duration(secs * float64(time.Second))
	}

	snap, completed, err := s.svc.Wait(chi.URLParam(r, "id"), timeout)
	if err != nil {
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}
	if !completed {
		respondError(w, http.StatusRequestTimeout, "wait_timeout", "job still running")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleFiller(w http.ResponseWriter, r *http.Request) {
	delay, ok := s.svc.FillerDecision(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, map[string]any{
		"speak":    ok,
		"delay_ms": delay.Milliseconds(),
	})
}

type openSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	summary := s.svc.OpenSession(r.Context(), strings.TrimSpace(req.SessionID))
	respondJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	report := s.svc.CloseSession(r.Context(), id)
	respondJSON(w, http.StatusOK, report)
}

type escalateRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "student request"
	}

	observerURL := s.svc.Escalate(r.Context(), req.SessionID, req.Reason)
	respondJSON(w, http.StatusOK, map[string]string{"observer_url": observerURL})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
