package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/pkg/model"
)

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Type    string `json:"type"`
		Urgency string `json:"urgency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	urgency := model.Urgency(req.Urgency)
	if req.Urgency == "" {
		urgency = model.UrgencyFlexible
	}
	if !urgency.Valid() {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid field",
				model.FieldError{Field: "urgency", Message: "urgency must be critical or flexible"}))
		return
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        "job_" + uuid.New().String(),
		Type:      req.Type,
		Urgency:   urgency,
		Status:    model.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Persist first, then enqueue: the scheduler must never pop an id whose
	// record does not exist yet.
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if err := s.queues.Push(r.Context(), queue.Pending, job.ID); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("job created", "id", job.ID, "type", job.Type, "urgency", job.Urgency)
	respondCreated(w, reqID, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	opts.Clamp()

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	respondList(w, reqID, jobs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}

	respondOK(w, reqID, job)
}

// decisionResponse is the explainability surface: why a job runs in its mode,
// or why it is deferred until when, under which rule.
type decisionResponse struct {
	JobID            string          `json:"job_id"`
	Status           model.JobStatus `json:"status"`
	Mode             model.Mode      `json:"mode,omitempty"`
	DecisionAt       *time.Time      `json:"decision_timestamp,omitempty"`
	CarbonAtDecision *int            `json:"carbon_intensity_at_decision,omitempty"`
	RuleID           string          `json:"policy_rule_id,omitempty"`
	Reason           string          `json:"decision_reason,omitempty"`
	DeferDeadline    *time.Time      `json:"defer_deadline_ts,omitempty"`
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}

	respondOK(w, reqID, decisionResponse{
		JobID:            job.ID,
		Status:           job.Status,
		Mode:             job.Mode,
		DecisionAt:       job.DecisionAt,
		CarbonAtDecision: job.CarbonAtDecision,
		RuleID:           job.RuleID,
		Reason:           job.Reason,
		DeferDeadline:    job.DeferDeadline,
	})
}
