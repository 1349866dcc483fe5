package api

import (
	"net/http"

	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
)

// SkillHandler serves skill ledgers.
type SkillHandler struct {
	deps Dependencies
}

// NewSkillHandler creates a new skill handler.
func NewSkillHandler(deps Dependencies) *SkillHandler {
	return &SkillHandler{deps: deps}
}

// HandleSkills handles GET /users/{id}/skills. Users read their own ledger;
// reviewers and administrators may read anyone's.
func (h *SkillHandler) HandleSkills(w http.ResponseWriter, r *http.Request) {
	const op = "api.skills"
	actor := actorFrom(r)
	userID := r.PathValue("id")
	if actor.UserID == "" || (actor.UserID != userID && actor.Role == model.RoleParticipant) {
		writeError(w, errkind.NewKind(op, errkind.ErrUnauthorized, "cannot read another participant's ledger"))
		return
	}
	standings, err := h.deps.GetSkillLedger(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStandingViews(standings))
}
