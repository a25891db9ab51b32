// Package chi exposes the orchestrator over HTTP: chat turns, stateless
// search, conversation history, usage and health.
package chi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/intent"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
	domusage "github.com/kailas-cloud/omnidex/internal/domain/usage"
	chatuc "github.com/kailas-cloud/omnidex/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/omnidex/internal/usecase/health"
	usageuc "github.com/kailas-cloud/omnidex/internal/usecase/usage"
)

// Error response codes.
const (
	codeBadRequest           = "bad_request"
	codeInvalidQuery         = "invalid_query"
	codeConversationNotFound = "conversation_not_found"
	codeAllBackendsFailed    = "all_backends_failed"
	codeQuotaExceeded        = "generative_quota_exceeded"
	codeInternalError        = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use case services into HTTP handlers.
type Server struct {
	chat          *chatuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	defaultLimit  int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:   chat,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		allBackendsFailedHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrConversationNotFound, http.StatusNotFound, codeConversationNotFound),
		sentinelHandler(domain.ErrGenerativeQuotaExceeded, http.StatusTooManyRequests, codeQuotaExceeded),
	}
	return s
}

// WithDefaultLimit sets the result limit applied when a request omits one.
func (s *Server) WithDefaultLimit(limit int) *Server {
	s.defaultLimit = limit
	return s
}

// Mount registers all routes on the router. Middleware stays with the caller.
func (s *Server) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Get("/search", s.Search)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.DeleteConversation)
		})
		r.Get("/usage", s.GetUsage)
	})
	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", s.Metrics)
}

// chatRequest is the POST /api/v1/chat body.
type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
	Intent         string `json:"intent,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}

	q, err := domain.NewQuery(conversationID, req.Query, intent.Intent(req.Intent), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	res, err := s.chat.HandleTurn(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fusedToResponse(conversationID, res))
}

// Search handles GET /api/v1/search: the retrieval-only path, no memory writes.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	// Search is stateless; the throwaway conversation id never reaches memory.
	q, err := domain.NewQuery(uuid.NewString(), r.URL.Query().Get("q"), intent.Intent(r.URL.Query().Get("intent")), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	res, err := s.chat.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fusedToResponse("", res))
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	turns, err := s.chat.History(id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		ConversationID: id,
		Turns:          turnsToDTO(turns),
	})
}

// DeleteConversation handles DELETE /api/v1/conversations/{id}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Forget(chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	if raw := r.URL.Query().Get("period"); raw != "" {
		period = domusage.Period(raw)
		if !period.IsValid() {
			writeError(w, http.StatusBadRequest, codeBadRequest, "period must be day, month or total")
			return
		}
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, usageToResponse(report))
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, result := range report.Checks {
		checks[name] = string(result)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrConversationNotFound,
		domain.ErrAllBackendsFailed,
		domain.ErrGenerativeQuotaExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// allBackendsFailedHandler handles ErrAllBackendsFailed with the per-backend
// failure list in the body.
func allBackendsFailedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrAllBackendsFailed) {
		return false
	}
	var abf *domain.AllBackendsFailedError
	if errors.As(err, &abf) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"code":     codeAllBackendsFailed,
			"message":  msg,
			"failures": failuresToDTO(abf.Failures),
		})
		return true
	}
	writeError(w, http.StatusBadGateway, codeAllBackendsFailed, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type itemDTO struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Backends []string          `json:"backends"`
	Title    string            `json:"title,omitempty"`
	Snippet  string            `json:"snippet,omitempty"`
	Source   string            `json:"source,omitempty"`
	Related  []string          `json:"related,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type failureDTO struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

type fusedResponse struct {
	ConversationID string       `json:"conversation_id,omitempty"`
	Status         string       `json:"status"`
	Intent         string       `json:"intent"`
	Fallback       bool         `json:"fallback,omitempty"`
	Action         string       `json:"action,omitempty"`
	Narrative      string       `json:"narrative,omitempty"`
	Confidence     *float64     `json:"confidence,omitempty"`
	Items          []itemDTO    `json:"items"`
	Contributing   []string     `json:"contributing,omitempty"`
	Failed         []failureDTO `json:"failed,omitempty"`
	TookMs         int64        `json:"took_ms"`
}

type turnDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ResultIDs []string  `json:"result_ids,omitempty"`
}

type conversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	Turns          []turnDTO `json:"turns"`
}

type usageMetricsDTO struct {
	GenerativeRequests int `json:"generative_requests"`
	Tokens             int `json:"tokens"`
}

type budgetStatusDTO struct {
	TokensLimit     int        `json:"tokens_limit"`
	TokensRemaining int        `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

type usageResponse struct {
	Period        string          `json:"period"`
	Driver        string          `json:"driver,omitempty"`
	Usage         usageMetricsDTO `json:"usage"`
	Budget        budgetStatusDTO `json:"budget"`
	PeriodStartAt *time.Time      `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time      `json:"period_end_at,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func fusedToResponse(conversationID string, res domain.FusedResult) fusedResponse {
	status := "ok"
	switch {
	case res.Partial:
		status = "partial"
	case res.Empty():
		status = "empty"
	}

	var confidence *float64
	if !math.IsNaN(res.Confidence) {
		c := res.Confidence
		confidence = &c
	}

	items := make([]itemDTO, len(res.Items))
	for i := range res.Items {
		items[i] = itemToDTO(&res.Items[i])
	}

	return fusedResponse{
		ConversationID: conversationID,
		Status:         status,
		Intent:         string(res.Intent),
		Fallback:       res.Fallback,
		Action:         res.Action,
		Narrative:      res.Narrative,
		Confidence:     confidence,
		Items:          items,
		Contributing:   res.Contributing,
		Failed:         failuresToDTO(res.Failed),
		TookMs:         res.Took.Milliseconds(),
	}
}

func itemToDTO(item *domain.FusedItem) itemDTO {
	backends := make([]string, len(item.Backends()))
	for i, kind := range item.Backends() {
		backends[i] = string(kind)
	}
	return itemDTO{
		ID:       item.ID(),
		Score:    item.Score(),
		Backends: backends,
		Title:    item.Title(),
		Snippet:  item.Snippet(),
		Source:   item.Source(),
		Related:  item.Related(),
		Fields:   item.Fields(),
	}
}

func failuresToDTO(failures []domain.BackendFailure) []failureDTO {
	if len(failures) == 0 {
		return nil
	}
	out := make([]failureDTO, len(failures))
	for i, f := range failures {
		out[i] = failureDTO{
			Name:   f.Name,
			Kind:   string(f.Backend),
			Status: string(f.Status),
		}
	}
	return out
}

func turnsToDTO(turns []turn.Turn) []turnDTO {
	out := make([]turnDTO, len(turns))
	for i := range turns {
		t := &turns[i]
		out[i] = turnDTO{
			ID:        t.ID(),
			Role:      string(t.Role()),
			Text:      t.Text(),
			CreatedAt: t.CreatedAt().UTC(),
			ResultIDs: t.ResultIDs(),
		}
	}
	return out
}

func usageToResponse(report domusage.Report) usageResponse {
	isExhausted := report.Budget().IsExhausted()
	resp := usageResponse{
		Period: string(report.Period()),
		Driver: report.Driver(),
		Usage: usageMetricsDTO{
			GenerativeRequests: report.Metrics().GenerativeRequests(),
			Tokens:             report.Metrics().Tokens(),
		},
		Budget: budgetStatusDTO{
			TokensLimit:     report.Budget().TokensLimit(),
			TokensRemaining: report.Budget().TokensRemaining(),
			IsExhausted:     isExhausted,
		},
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	return resp
}
