package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"laundry-engine/internal/engine"
	"laundry-engine/internal/repository"
)

// Request bodies are typed per operation: every mutable field is listed
// explicitly and unknown fields are rejected, never merged.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

type orderSnapshot struct {
	ID               string             `json:"id"`
	Kind             repository.Kind    `json:"kind"`
	CustomerName     string             `json:"customer_name"`
	CustomerEmail    string             `json:"customer_email"`
	PickupDate       string             `json:"pickup_date"`
	PickupTime       string             `json:"pickup_time"`
	Status           repository.Status  `json:"status"`
	RejectReason     *string            `json:"reject_reason,omitempty"`
	TimerStart       *time.Time         `json:"timer_start,omitempty"`
	TimerEnd         *time.Time         `json:"timer_end,omitempty"`
	TimerStage       *repository.Status `json:"timer_stage,omitempty"`
	AutoAdvance      bool               `json:"auto_advance"`
	MovedToHistoryAt *time.Time         `json:"moved_to_history_at,omitempty"`
	IsDeleted        bool               `json:"is_deleted"`
	DeletedAt        *time.Time         `json:"deleted_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toSnapshot(o *repository.Order) orderSnapshot {
	return orderSnapshot{
		ID:               o.ID,
		Kind:             o.Kind,
		CustomerName:     o.CustomerName,
		CustomerEmail:    o.CustomerEmail,
		PickupDate:       repository.DateKey(o.PickupDate),
		PickupTime:       o.PickupTime,
		Status:           o.Status,
		RejectReason:     o.RejectReason,
		TimerStart:       o.TimerStart,
		TimerEnd:         o.TimerEnd,
		TimerStage:       o.TimerStage,
		AutoAdvance:      o.AutoAdvance,
		MovedToHistoryAt: o.MovedToHistoryAt,
		IsDeleted:        o.IsDeleted,
		DeletedAt:        o.DeletedAt,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type createOrderRequest struct {
	Kind          string `json:"kind" validate:"required,oneof=order booking"`
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	PickupDate    string `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	PickupTime    string `json:"pickup_time" validate:"omitempty,datetime=15:04"`
	AutoAdvance   bool   `json:"auto_advance"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.PickupDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	order, err := s.engine.CreateOrder(r.Context(), engine.CreateOrderInput{
		Kind:          repository.Kind(req.Kind),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		PickupDate:    date,
		PickupTime:    req.PickupTime,
		AutoAdvance:   req.AutoAdvance,
	})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toSnapshot(order))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

type transitionRequest struct {
	Target string `json:"target" validate:"required"`
	Reason string `json:"reason"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.Transition(r.Context(), mux.Vars(r)["id"], repository.Status(req.Target), req.Reason)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Advance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.Reject(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

type rescheduleRequest struct {
	PickupDate string `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	PickupTime string `json:"pickup_time" validate:"omitempty,datetime=15:04"`
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !s.decode(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.PickupDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
		return
	}

	order, err := s.engine.Reschedule(r.Context(), mux.Vars(r)["id"], date, req.PickupTime)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

type startTimerRequest struct {
	Stage string `json:"stage" validate:"required,oneof=washing drying folding"`
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	var req startTimerRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.StartTimer(r.Context(), mux.Vars(r)["id"], repository.Status(req.Stage))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.StopTimer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleTimerStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.TimerStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

type autoAdvanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) handleToggleAutoAdvance(w http.ResponseWriter, r *http.Request) {
	var req autoAdvanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.ToggleAutoAdvance(r.Context(), mux.Vars(r)["id"], *req.Enabled)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

type restoreRequest struct {
	Type string `json:"type" validate:"required,oneof=order booking"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decode(w, r, &req) {
		return
	}

	order, err := s.engine.Restore(r.Context(), mux.Vars(r)["id"], repository.Kind(req.Type))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	kind := repository.Kind(r.URL.Query().Get("type"))
	if kind != repository.KindOrder && kind != repository.KindBooking {
		respondError(w, http.StatusBadRequest, "missing or invalid 'type' parameter")
		return
	}

	if err := s.engine.Purge(r.Context(), mux.Vars(r)["id"], kind); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "order permanently removed"})
}

func (s *Server) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.SoftDelete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSnapshot(order))
}

func (s *Server) handleExpiredTimers(w http.ResponseWriter, r *http.Request) {
	orders, err := s.engine.OrdersWithExpiredTimers(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	snapshots := make([]orderSnapshot, 0, len(orders))
	for _, o := range orders {
		snapshots = append(snapshots, toSnapshot(o))
	}
	respondJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("dates")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing 'dates' parameter")
		return
	}

	var dates []time.Time
	for _, part := range strings.Split(raw, ",") {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(part))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date "+part+", use YYYY-MM-DD")
			return
		}
		dates = append(dates, d)
	}

	counts, err := s.capacity.Capacity(r.Context(), dates)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}
