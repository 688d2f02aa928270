package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
)

// Handler serves the REST API. All requests act as the configured demo user
// until real authentication exists.
type Handler struct {
	service    *app.Service
	hub        *app.ProgressHub
	demoUserID int64
}

func NewHandler(service *app.Service, hub *app.ProgressHub, demoUserID int64) *Handler {
	return &Handler{service: service, hub: hub, demoUserID: demoUserID}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lessons", h.listLessons)
	mux.HandleFunc("GET /api/lessons/{id}", h.getLesson)
	mux.HandleFunc("POST /api/lessons/{id}/submit", h.submit)
	mux.HandleFunc("GET /api/profile", h.profile)
	mux.HandleFunc("GET /ws/progress", h.serveProgressWS)
}

// Read-side views. Problems are serialized without correct_option_id or
// correct_value: answer keys must never leave the server in a read response.

type optionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type problemView struct {
	ID       int64        `json:"id"`
	Question string       `json:"question_text"`
	Options  []optionView `json:"options"`
}

type lessonView struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Problems []problemView `json:"problems"`
}

type profileView struct {
	ID            int64        `json:"id"`
	Username      string       `json:"username"`
	TotalXP       int          `json:"total_xp"`
	CurrentStreak int          `json:"current_streak"`
	BestStreak    int          `json:"best_streak"`
	LastActivity  *domain.Date `json:"last_activity_date"`
}

type submitRequest struct {
	AttemptID string              `json:"attempt_id"`
	Answers   []domain.AnswerItem `json:"answers"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) listLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.service.ListLessons(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]lessonView, 0, len(lessons))
	for _, lesson := range lessons {
		views = append(views, toLessonView(lesson))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getLesson(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := pathID(w, r)
	if !ok {
		return
	}
	lesson, err := h.service.GetLesson(r.Context(), lessonID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonView(lesson))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("malformed request body: %v", err))
		return
	}
	if _, err := uuid.Parse(req.AttemptID); err != nil {
		h.writeError(w, domain.Validationf("attempt_id must be a UUID"))
		return
	}

	outcome, err := h.service.Submit(r.Context(), app.SubmitRequest{
		UserID:    h.demoUserID,
		LessonID:  lessonID,
		AttemptID: req.AttemptID,
		Answers:   req.Answers,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Profile(r.Context(), h.demoUserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		ID:            user.ID,
		Username:      user.Username,
		TotalXP:       user.TotalXP,
		CurrentStreak: user.CurrentStreak,
		BestStreak:    user.BestStreak,
		LastActivity:  user.LastActivity,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation domain.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation", Message: validation.Reason})
		return
	}
	var invalidProblem domain.InvalidProblemError
	if errors.As(err, &invalidProblem) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "InvalidProblem",
			Message: invalidProblem.Error(),
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrLessonNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Message: "lesson not found"})
	case errors.Is(err, domain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Message: "user not found"})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal", Message: "internal error"})
	}
}

func toLessonView(lesson domain.Lesson) lessonView {
	view := lessonView{ID: lesson.ID, Title: lesson.Title, Problems: make([]problemView, 0, len(lesson.Problems))}
	for _, p := range lesson.Problems {
		pv := problemView{ID: p.ID, Question: p.Question, Options: make([]optionView, 0, len(p.Options))}
		for _, opt := range p.Options {
			pv.Options = append(pv.Options, optionView{ID: opt.ID, Text: opt.Text})
		}
		view.Problems = append(view.Problems, pv)
	}
	return view
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Message: "lesson not found"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
