package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shuttle/internal/api"
	"shuttle/internal/logging"
	"shuttle/internal/queue"
	"shuttle/internal/scheduler"
	"shuttle/internal/services"
)

const maxRequestBody = 1 << 20

// missionService is the scheduler surface the API exposes.
type missionService interface {
	Create(ctx context.Context, req scheduler.Request) (scheduler.Created, error)
	Get(ctx context.Context, uid string) (*queue.Mission, error)
	List(ctx context.Context, q queue.PageQuery) (queue.Page, error)
	Pause(ctx context.Context, uid string) error
	Resume(ctx context.Context, uid string) error
	Stop(ctx context.Context, uid string) error
	Delete(ctx context.Context, uid string) error
}

type statusFunc func(ctx context.Context) (api.DaemonStatus, error)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	missions missionService
	status   statusFunc
	handler  http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, missions missionService, status statusFunc, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(bind),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		missions: missions,
		status:   status,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/missions", srv.handleList)
	mux.HandleFunc("POST /api/missions", srv.handleCreate)
	mux.HandleFunc("GET /api/missions/{uid}", srv.handleGet)
	mux.HandleFunc("DELETE /api/missions/{uid}", srv.handleDelete)
	mux.HandleFunc("POST /api/missions/{uid}/{action}", srv.handleControl)
	srv.handler = requestIDMiddleware(authMiddleware(token, mux))

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start() error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	if s.listener == nil {
		return
	}
	if err := s.server.Shutdown(ctx); err != nil {
		logging.WarnWithContext(s.logger, "api server shutdown incomplete", "api_shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight requests were cut off"),
		)
	}
	s.listener = nil
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload, err := s.status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.missions.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPage(page))
}

func (s *apiServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body api.CreateMissionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&body); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "create", "invalid request body", err))
		return
	}
	created, err := s.missions.Create(r.Context(), scheduler.Request{
		URL:        body.URL,
		Name:       body.Name,
		OutputDir:  body.Dir,
		Format:     body.Format,
		Preset:     body.Preset,
		UserAgent:  body.UserAgent,
		Headers:    body.Headers,
		Options:    body.Options.QueueOptions(),
		TimeSuffix: body.TimeSuffix,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.CreateMissionResponse{
		UID:    created.UID,
		Name:   created.Name,
		Status: string(created.Status),
	})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	s.writeMission(w, r, r.PathValue("uid"), http.StatusOK)
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.missions.Delete(r.Context(), r.PathValue("uid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleControl(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	var err error
	switch r.PathValue("action") {
	case "pause":
		err = s.missions.Pause(r.Context(), uid)
	case "resume":
		err = s.missions.Resume(r.Context(), uid)
	case "stop":
		err = s.missions.Stop(r.Context(), uid)
	default:
		s.writeJSON(w, http.StatusNotFound, errorBody("unknown action", services.Kind(services.ErrNotFound)))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMission(w, r, uid, http.StatusAccepted)
}

func (s *apiServer) writeMission(w http.ResponseWriter, r *http.Request, uid string, status int) {
	m, err := s.missions.Get(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status, api.MissionResponse{Mission: api.FromMission(m)})
}

func parsePageQuery(r *http.Request) (queue.PageQuery, error) {
	values := r.URL.Query()
	q := queue.PageQuery{
		SortField: strings.TrimSpace(values.Get("sort")),
		SortOrder: strings.TrimSpace(values.Get("order")),
	}
	for _, field := range []struct {
		key string
		dst *int
	}{
		{"page", &q.Page},
		{"pageSize", &q.PageSize},
	} {
		raw := strings.TrimSpace(values.Get(field.key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return queue.PageQuery{}, services.Wrap(services.ErrValidation, "api", "list", fmt.Sprintf("invalid %s %q", field.key, raw), nil)
		}
		*field.dst = n
	}
	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return queue.PageQuery{}, services.Wrap(services.ErrValidation, "api", "list", fmt.Sprintf("unknown status %q", raw), nil)
		}
		q.Status = status
	}
	return q, nil
}

// statusCode maps error markers to HTTP status codes.
func statusCode(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		ctx := services.WithMissionUID(r.Context(), r.PathValue("uid"))
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "api request failed", "api_request_failed",
			logging.Error(err),
			logging.Int("status", code),
		)
	}
	s.writeJSON(w, code, errorBody(err.Error(), services.Kind(err)))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func errorBody(message, kind string) api.ErrorResponse {
	return api.ErrorResponse{Error: message, Kind: kind}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
