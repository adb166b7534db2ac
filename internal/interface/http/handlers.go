package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cartperks/cartperks-engine/internal/application/command"
	"github.com/cartperks/cartperks-engine/internal/application/query"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Session    string `json:"session"`
	Prime      bool   `json:"prime"`
	DrawerOpen bool   `json:"drawer_open"`
}

// EvaluateResponse is the full pass outcome rendered for the overlay.
type EvaluateResponse struct {
	PassID        string          `json:"pass_id"`
	Unavailable   bool            `json:"unavailable"`
	Degraded      bool            `json:"degraded"`
	Primed        bool            `json:"primed"`
	Progress      ProgressDTO     `json:"progress"`
	Best          *OfferDTO       `json:"best,omitempty"`
	Offers        []OfferDTO      `json:"offers,omitempty"`
	Announcements []string        `json:"announcements"`
	Popups        []PopupDTO      `json:"popups,omitempty"`
	RewardsAdded  int             `json:"rewards_added"`
	Removed       []RemovedDTO    `json:"removed,omitempty"`
}

// ProgressDTO renders a progress descriptor.
type ProgressDTO struct {
	Suppressed       bool      `json:"suppressed"`
	Steps            []StepDTO `json:"steps,omitempty"`
	CompletedCount   int       `json:"completed_count"`
	NextPending      int       `json:"next_pending"`
	CompletedPercent float64   `json:"completed_percent"`
	FillPercent      float64   `json:"fill_percent"`
	Label            string    `json:"label"`
	AllComplete      bool      `json:"all_complete"`
}

// StepDTO renders one milestone step.
type StepDTO struct {
	Slot     int    `json:"slot"`
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Icon     string `json:"icon"`
	Goal     int64  `json:"goal"`
	Resolved bool   `json:"resolved"`
	Done     bool   `json:"done"`
	Label    string `json:"label"`
}

// OfferDTO renders an eligibility record.
type OfferDTO struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	Complete bool   `json:"complete"`
	Message  string `json:"message"`
}

// PopupDTO renders a prompt-open intent.
type PopupDTO struct {
	Kind             string `json:"kind"`
	GuardKey         string `json:"guard_key"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	Icon             string `json:"icon"`
	AutoCloseAfterMS int64  `json:"auto_close_after_ms,omitempty"`
}

// RemovedDTO renders an enforcer removal.
type RemovedDTO struct {
	LineIndex int    `json:"line_index"`
	RuleKey   string `json:"rule_key"`
	Reason    string `json:"reason"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEvaluate runs one evaluation pass synchronously and returns the
// outcome. This is the overlay's main endpoint.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	session, err := shared.ParseSessionToken(req.Session)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	result, err := s.deps.RunPass.Handle(r.Context(), command.RunPassCommand{
		Session:    session,
		Prime:      req.Prime,
		DrawerOpen: req.DrawerOpen,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toEvaluateResponse(result))
}

// handleGetProgress returns the current milestone descriptor without side
// effects.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	session, err := shared.ParseSessionToken(chi.URLParam(r, "session"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	desc, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{Session: session})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toProgressDTO(desc))
}

// handleGetAnnouncements returns the merged announcement list.
func (s *Server) handleGetAnnouncements(w http.ResponseWriter, r *http.Request) {
	session, err := shared.ParseSessionToken(chi.URLParam(r, "session"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	messages, err := s.deps.GetAnnouncements.Handle(r.Context(), query.GetAnnouncementsQuery{Session: session})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if messages == nil {
		messages = []string{}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"announcements": messages})
}

// handleTrigger records a cart-changed signal. The pass itself runs after
// the debounce window, so the endpoint acknowledges and returns.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	session, err := shared.ParseSessionToken(chi.URLParam(r, "session"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	// The trigger outlives the request; detach from the request context.
	s.deps.Coalescer.Trigger(context.WithoutCancel(r.Context()), session)
	writeJSON(w, r, http.StatusAccepted, map[string]any{"scheduled": true})
}

// handleLiveness answers as long as the process is up.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReadiness probes every registered dependency.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.HealthCheckers))
	healthy := true
	for _, hc := range s.deps.HealthCheckers {
		if err := hc.Check(r.Context()); err != nil {
			checks[hc.Name()] = err.Error()
			healthy = false
			continue
		}
		checks[hc.Name()] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, map[string]any{"healthy": healthy, "checks": checks})
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func toEvaluateResponse(result *command.EvaluationResult) EvaluateResponse {
	resp := EvaluateResponse{
		PassID:        result.PassID,
		Unavailable:   result.Unavailable,
		Degraded:      result.Degraded,
		Primed:        result.Primed,
		Progress:      toProgressDTO(result.Progress),
		Announcements: result.Announcements,
		RewardsAdded:  len(result.RewardsAdded),
	}
	if resp.Announcements == nil {
		resp.Announcements = []string{}
	}
	if result.Best != nil {
		dto := toOfferDTO(*result.Best)
		resp.Best = &dto
	}
	for _, offer := range result.Offers {
		resp.Offers = append(resp.Offers, toOfferDTO(offer))
	}
	for _, popup := range result.Popups {
		resp.Popups = append(resp.Popups, PopupDTO{
			Kind:             string(popup.Kind),
			GuardKey:         popup.GuardKey.String(),
			Title:            popup.Title,
			Body:             popup.Body,
			Icon:             popup.Icon,
			AutoCloseAfterMS: popup.AutoCloseAfter.Milliseconds(),
		})
	}
	for _, removed := range result.Removed {
		resp.Removed = append(resp.Removed, RemovedDTO{
			LineIndex: removed.LineIndex,
			RuleKey:   removed.RuleKey.String(),
			Reason:    string(removed.Reason),
		})
	}
	return resp
}

func toProgressDTO(desc progress.Descriptor) ProgressDTO {
	dto := ProgressDTO{
		Suppressed:       desc.Suppressed,
		CompletedCount:   desc.CompletedCount,
		NextPending:      desc.NextPending,
		CompletedPercent: float64(desc.CompletedPercent),
		FillPercent:      float64(desc.FillPercent),
		Label:            desc.Label,
		AllComplete:      desc.AllComplete,
	}
	for _, step := range desc.Steps {
		dto.Steps = append(dto.Steps, StepDTO{
			Slot:     step.Slot,
			Key:      step.Key.String(),
			Kind:     string(step.Kind),
			Title:    step.Title,
			Icon:     step.Icon,
			Goal:     int64(step.Goal),
			Resolved: step.Resolved,
			Done:     step.Done,
			Label:    step.Label,
		})
	}
	return dto
}

func toOfferDTO(record eligibility.Record) OfferDTO {
	return OfferDTO{
		Key:      record.Key.String(),
		Kind:     string(record.Rule.Kind),
		Complete: record.Complete,
		Message:  record.CurrentMessage,
	}
}
