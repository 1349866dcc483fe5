// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/questlog/internal/app"
	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
	"github.com/okian/questlog/internal/domain/progression"
)

// Gateway headers carrying the authenticated caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RegisterQuest(ctx context.Context, actor model.Actor, in service.QuestInput) (model.Quest, error)
	Assign(ctx context.Context, actor model.Actor, questID, userID string) (model.QuestAssignment, error)
	Accept(ctx context.Context, actor model.Actor, questID string) (service.AcceptResult, error)
	Decline(ctx context.Context, actor model.Actor, questID string) (model.QuestAssignment, error)
	Submit(ctx context.Context, actor model.Actor, questID string, p model.Payload) (model.Submission, error)
	Edit(ctx context.Context, actor model.Actor, questID string, p model.Payload) (model.Submission, error)
	GetAssignmentStatus(ctx context.Context, userID, questID string) (service.AssignmentView, error)
	Review(ctx context.Context, actor model.Actor, in service.ReviewInput) (service.ReviewResult, error)
	ListPending(ctx context.Context, actor model.Actor, f service.PendingFilter) ([]service.QuestQueue, error)
	GetSkillLedger(ctx context.Context, userID string) ([]progression.Standing, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	questHandler  *QuestHandler
	reviewHandler *ReviewHandler
	skillHandler  *SkillHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	v := newValidator()
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		questHandler:  NewQuestHandler(deps, v),
		reviewHandler: NewReviewHandler(deps, v),
		skillHandler:  NewSkillHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /quests", MetricsMiddleware(s.questHandler.HandleRegister, "quests"))
	mux.HandleFunc("POST /quests/{id}/assign", MetricsMiddleware(s.questHandler.HandleAssign, "assign"))
	mux.HandleFunc("POST /quests/{id}/accept", MetricsMiddleware(s.questHandler.HandleAccept, "accept"))
	mux.HandleFunc("POST /quests/{id}/decline", MetricsMiddleware(s.questHandler.HandleDecline, "decline"))
	mux.HandleFunc("POST /quests/{id}/submission", MetricsMiddleware(s.questHandler.HandleSubmit, "submit"))
	mux.HandleFunc("PUT /quests/{id}/submission", MetricsMiddleware(s.questHandler.HandleEdit, "edit"))
	mux.HandleFunc("GET /quests/{id}/status", MetricsMiddleware(s.questHandler.HandleStatus, "status"))

	mux.HandleFunc("POST /submissions/{id}/review", MetricsMiddleware(s.reviewHandler.HandleReview, "review"))
	mux.HandleFunc("GET /reviews/pending", MetricsMiddleware(s.reviewHandler.HandlePending, "pending"))

	mux.HandleFunc("GET /users/{id}/skills", MetricsMiddleware(s.skillHandler.HandleSkills, "skills"))
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// actorFrom builds the caller from gateway headers. An absent user id
// yields an anonymous actor the service rejects.
func actorFrom(r *http.Request) model.Actor {
	return model.Actor{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   model.ParseRole(r.Header.Get(HeaderUserRole)),
	}
}

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	const op = "api.decode"
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errkind.NewKindf(op, errkind.ErrValidation, "malformed request body: %v", err)
	}
	if err := v.Struct(dst); err != nil {
		return errkind.NewKind(op, errkind.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a failure kind to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch errkind.KindOf(err) {
	case errkind.ErrInvalidTransition:
		return http.StatusConflict, "invalid_transition"
	case errkind.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case errkind.ErrUnauthorized:
		return http.StatusForbidden, "unauthorized"
	case errkind.ErrValidation:
		return http.StatusBadRequest, "validation"
	case errkind.ErrAlreadyProcessed:
		return http.StatusConflict, "already_processed"
	default:
		return http.StatusServiceUnavailable, "persistence"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := errkind.Reason(err)
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
