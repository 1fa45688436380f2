package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"ilm/backend/internal/agent"
	"ilm/backend/internal/auth"
	"ilm/backend/internal/config"
	"ilm/backend/internal/logging"
	"ilm/backend/internal/querylog"
)

const (
	systemName    = "Fanar-based Islamic Writing Multi-Agent System"
	systemVersion = "1.0.0"
)

type QueryRunner interface {
	Run(ctx context.Context, query agent.Query, opts agent.RunOptions) agent.SystemResponse
}

// QueryRecorder persists answered queries. A nil recorder disables the log.
type QueryRecorder interface {
	Record(ctx context.Context, query agent.Query, opts agent.RunOptions, resp agent.SystemResponse) (querylog.Entry, error)
	Recent(ctx context.Context, limit int) ([]querylog.Entry, error)
}

type HealthProbe func(ctx context.Context) agent.Health

type Handler struct {
	cfg      config.Config
	runner   QueryRunner
	recorder QueryRecorder
	health   HealthProbe
	verifier auth.Verifier
	validate *validator.Validate
	logger   logging.Logger
}

func NewHandler(cfg config.Config, runner QueryRunner, recorder QueryRecorder, health HealthProbe, verifier auth.Verifier, logger logging.Logger) Handler {
	return Handler{
		cfg:      cfg,
		runner:   runner,
		recorder: recorder,
		health:   health,
		verifier: verifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logging.OrDiscard(logger),
	}
}

type contextKey string

const identityContextKey contextKey = "google_identity"

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeError(w, http.StatusServiceUnavailable, "health_unavailable", "health probe is not configured")
		return
	}
	health := h.health(r.Context())
	status := http.StatusOK
	if health.Status == agent.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h Handler) SystemInfo(w http.ResponseWriter, _ *http.Request) {
	searchStatus := agent.StatusUnavailable
	if h.cfg.TavilyAPIKey != "" {
		searchStatus = "configured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"system":  systemName,
		"version": systemVersion,
		"agents": []string{
			"Query Rewriter",
			"Tool Planner",
			"Tool Executor",
			"Synthesizer",
		},
		"services": map[string]string{
			agent.ServiceChat:   "configured",
			agent.ServiceSearch: searchStatus,
		},
		"models": map[string]string{
			"chat": h.cfg.FanarChatModel,
			"rag":  h.cfg.FanarRAGModel,
		},
		"preferredSources": h.cfg.PreferredSources,
		"configuration": map[string]any{
			"stagedModeDefault":    h.cfg.StagedModeDefault,
			"parallelToolsDefault": h.cfg.ParallelToolsDefault,
			"toolConcurrency":      h.cfg.ToolConcurrency,
			"queryLogEnabled":      h.recorder != nil,
			"authRequired":         h.cfg.AuthRequired,
		},
	})
}

type queryRequest struct {
	Query             string `json:"query" validate:"required,max=4000"`
	Language          string `json:"language,omitempty" validate:"omitempty,min=2,max=16"`
	IncludeReferences *bool  `json:"include_references,omitempty"`
	Staged            *bool  `json:"staged,omitempty"`
	Parallel          *bool  `json:"parallel,omitempty"`
}

func (h Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	req.Language = strings.TrimSpace(req.Language)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	query := agent.NewQuery(req.Query)
	if req.Language != "" {
		query.Language = strings.ToLower(req.Language)
	}
	if req.IncludeReferences != nil {
		query.IncludeReferences = *req.IncludeReferences
	}
	opts := agent.RunOptions{
		Staged:   boolOr(req.Staged, h.cfg.StagedModeDefault),
		Parallel: boolOr(req.Parallel, h.cfg.ParallelToolsDefault),
	}

	fields := logging.Fields{"staged": opts.Staged, "parallel": opts.Parallel, "language": query.Language}
	if identity, ok := identityFromContext(r.Context()); ok {
		fields["email"] = identity.Email
	}
	resp := h.runner.Run(r.Context(), query, opts)
	fields["stage"] = resp.Stage
	fields["elapsed_ms"] = resp.Elapsed.Milliseconds()
	h.logger.WithFields(fields).Info("query answered")

	if h.recorder != nil {
		if _, err := h.recorder.Record(r.Context(), query, opts, resp); err != nil {
			h.logger.WithError(err).Warn("failed to record query")
		}
	}

	writeJSON(w, http.StatusOK, BuildView(query, resp))
}

func (h Handler) RecentQueries(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		writeError(w, http.StatusNotFound, "query_log_disabled", "query log is not configured")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := h.recorder.Recent(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to read query log")
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read query log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": entries})
}

// RequireIdentity admits requests carrying an allowlisted Google ID token.
// It passes everything through when auth is not required.
func (h Handler) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.AuthRequired {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := h.identityFromRequest(r.Context(), r)
		switch {
		case errors.Is(err, auth.ErrNotAllowed):
			writeError(w, http.StatusForbidden, "email_not_allowlisted", "email is not allowed")
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h Handler) identityFromRequest(ctx context.Context, r *http.Request) (auth.GoogleIdentity, error) {
	if !h.cfg.InsecureSkipGoogleVerify {
		return h.verifier.Verify(ctx, auth.BearerToken(r.Header.Get("Authorization")))
	}

	email := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Test-Email")))
	sub := strings.TrimSpace(r.Header.Get("X-Test-Google-Sub"))
	if email == "" || sub == "" {
		return auth.GoogleIdentity{}, errors.New("insecure auth mode requires X-Test-Email and X-Test-Google-Sub headers")
	}
	if !h.verifier.Allowed(email) {
		return auth.GoogleIdentity{}, auth.ErrNotAllowed
	}
	return auth.GoogleIdentity{GoogleSubject: sub, Email: email, Name: strings.TrimSpace(r.Header.Get("X-Test-Name"))}, nil
}

func identityFromContext(ctx context.Context) (auth.GoogleIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.GoogleIdentity)
	return identity, ok
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	first := fieldErrs[0]
	field := strings.ToLower(first.Field())
	switch first.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + first.Param() + " characters"
	case "min":
		return field + " must be at least " + first.Param() + " characters"
	default:
		return field + " is invalid"
	}
}
