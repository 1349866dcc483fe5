package api

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/questlog/internal/app"
	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/model"
)

type skillRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Tier int    `json:"tier" validate:"min=1,max=5"`
}

// questRequest mirrors the body of POST /quests.
type questRequest struct {
	ID        string         `json:"id" validate:"omitempty,max=128"`
	Title     string         `json:"title" validate:"required,max=200"`
	CreatorID string         `json:"creator_id" validate:"omitempty,max=128"`
	DueDate   string         `json:"due_date"`
	Mandatory bool           `json:"mandatory"`
	Skills    []skillRequest `json:"skills" validate:"dive"`
}

type assignRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type payloadRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=file link text"`
	Value string `json:"value" validate:"required"`
}

// QuestHandler handles the quest lifecycle routes.
type QuestHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewQuestHandler creates a new quest handler.
func NewQuestHandler(deps Dependencies, v *validator.Validate) *QuestHandler {
	return &QuestHandler{deps: deps, validate: v}
}

// HandleRegister handles POST /quests.
func (h *QuestHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req questRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}
	skills := make([]model.SkillRequirement, len(req.Skills))
	for i, s := range req.Skills {
		skills[i] = model.SkillRequirement{Name: s.Name, Tier: s.Tier}
	}
	q, err := h.deps.RegisterQuest(r.Context(), actorFrom(r), service.QuestInput{
		ID:        req.ID,
		Title:     req.Title,
		CreatorID: req.CreatorID,
		DueDate:   req.DueDate,
		Mandatory: req.Mandatory,
		Skills:    skills,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuestView(q))
}

// HandleAssign handles POST /quests/{id}/assign.
func (h *QuestHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.deps.Assign(r.Context(), actorFrom(r), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentView(a))
}

// HandleAccept handles POST /quests/{id}/accept.
func (h *QuestHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Accept(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptView{
		Assignment: toAssignmentView(res.Assignment),
		CanSubmit:  res.CanSubmit,
		Notice:     res.Notice,
	})
}

// HandleDecline handles POST /quests/{id}/decline.
func (h *QuestHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Decline(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentView(a))
}

// HandleSubmit handles POST /quests/{id}/submission.
func (h *QuestHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	p, err := h.payload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := h.deps.Submit(r.Context(), actorFrom(r), r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionView(sub))
}

// HandleEdit handles PUT /quests/{id}/submission.
func (h *QuestHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	p, err := h.payload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	sub, err := h.deps.Edit(r.Context(), actorFrom(r), r.PathValue("id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionView(sub))
}

// HandleStatus handles GET /quests/{id}/status. Without user_id the caller's
// own status is returned; only administrators may look up someone else.
func (h *QuestHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.status"
	actor := actorFrom(r)
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = actor.UserID
	}
	if actor.UserID == "" || (userID != actor.UserID && !actor.IsAdmin()) {
		writeError(w, errkind.NewKind(op, errkind.ErrUnauthorized, "only administrators may view another user's status"))
		return
	}
	view, err := h.deps.GetAssignmentStatus(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusView(view))
}

func (h *QuestHandler) payload(w http.ResponseWriter, r *http.Request) (model.Payload, error) {
	var req payloadRequest
	if err := decodeBody(w, r, h.validate, &req); err != nil {
		return model.Payload{}, err
	}
	return model.Payload{Kind: model.PayloadKind(req.Kind), Value: req.Value}, nil
}
