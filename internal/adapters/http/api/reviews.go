package api

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/questlog/internal/app"
	"github.com/okian/questlog/internal/domain/scoring"
)

type gradeRequest struct {
	Label string `json:"label" validate:"max=64"`
	Notes string `json:"notes" validate:"max=2000"`
}

// reviewRequest mirrors the body of POST /submissions/{id}/review.
type reviewRequest struct {
	Decision string                  `json:"decision" validate:"required"`
	Feedback string                  `json:"feedback" validate:"max=4000"`
	Grades   map[string]gradeRequest `json:"grades" validate:"dive"`
}

// ReviewHandler handles reviewer routes.
type ReviewHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps Dependencies, v *validator.Validate) *ReviewHandler {
	return &ReviewHandler{deps: deps, validate: v}
}

// HandleReview handles POST /submissions/{id}/review.
func (h *ReviewHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}
	grades := make(map[string]scoring.Grade, len(req.Grades))
	for skill, g := range req.Grades {
		grades[skill] = scoring.Grade{Label: g.Label, Notes: g.Notes}
	}
	res, err := h.deps.Review(r.Context(), actorFrom(r), service.ReviewInput{
		SubmissionID: r.PathValue("id"),
		Decision:     req.Decision,
		Feedback:     req.Feedback,
		Grades:       grades,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewView(res))
}

// HandlePending handles GET /reviews/pending.
func (h *ReviewHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	filter := service.PendingFilter{QuestID: strings.TrimSpace(r.URL.Query().Get("quest_id"))}
	queues, err := h.deps.ListPending(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueViews(queues))
}
