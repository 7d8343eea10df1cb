/*
handlers.go - HTTP API handlers for the OPD token queue

PURPOSE:
  Exposes the token admission and queue scheduling engine via REST.
  Handles HTTP request/response and JSON; every decision is delegated to
  the queue engine.

ENDPOINTS:
  Doctors:
    GET    /api/doctors              List doctors
    POST   /api/doctors              Register a doctor

  Tokens:
    POST   /api/tokens               Admit a patient (mint a token)
    GET    /api/tokens/{doctorID}    Ordered queue for a doctor-day
    PUT    /api/tokens/{id}/cancel   Cancel a token (frees the slot)
    PUT    /api/tokens/{id}/status   Complete / no-show a token

  Slots:
    GET    /api/slots/{doctorID}     Occupancy and capacity for a doctor-day

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (unknown source/status, malformed body)
  - 404: Doctor or token not found
  - 409: Slot full, invalid transition, already cancelled
  - 503: Transient storage contention (safe to retry)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/opd-queue/queue"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Doctors    queue.DoctorStore
	Tokens     queue.TokenStore
	Admissions *queue.AdmissionController
	Lifecycle  *queue.LifecycleManager
	Logger     zerolog.Logger

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

// NewHandler wires the engine components behind the REST surface.
func NewHandler(doctors queue.DoctorStore, tokens queue.TokenStore, admissions *queue.AdmissionController, lifecycle *queue.LifecycleManager, logger zerolog.Logger) *Handler {
	return &Handler{
		Doctors:    doctors,
		Tokens:     tokens,
		Admissions: admissions,
		Lifecycle:  lifecycle,
		Logger:     logger,
		Clock:      time.Now,
	}
}

// =============================================================================
// DOCTOR HANDLERS
// =============================================================================

// ListDoctors returns all registered doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.Doctors.ListDoctors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list doctors", err)
		return
	}

	dtos := make([]DoctorDTO, len(doctors))
	for i, d := range doctors {
		dtos[i] = toDoctorDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDoctor registers a new doctor.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Specialty) == "" {
		writeError(w, http.StatusBadRequest, "name and specialty are required", nil)
		return
	}
	if req.DailyCapacity <= 0 {
		writeError(w, http.StatusBadRequest, "daily_capacity must be positive", nil)
		return
	}

	doctor := queue.Doctor{
		ID:            queue.NewDoctorID(),
		Name:          req.Name,
		Specialty:     req.Specialty,
		SlotTime:      req.SlotTime,
		DailyCapacity: req.DailyCapacity,
		CreatedAt:     h.Clock(),
	}
	if err := h.Doctors.SaveDoctor(r.Context(), doctor); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create doctor", err)
		return
	}

	writeJSON(w, http.StatusCreated, toDoctorDTO(doctor))
}

// =============================================================================
// TOKEN HANDLERS
// =============================================================================

// AdmitToken admits a patient into a doctor's queue.
func (h *Handler) AdmitToken(w http.ResponseWriter, r *http.Request) {
	var req AdmitTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	source, err := queue.ParseSource(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid source", err)
		return
	}

	token, err := h.Admissions.Admit(r.Context(), queue.AdmissionRequest{
		DoctorID:    queue.DoctorID(req.DoctorID),
		PatientName: req.PatientName,
		Contact:     req.Contact,
		Source:      source,
	})
	if err != nil {
		h.writeQueueError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTokenDTO(*token))
}

// GetQueue returns the ordered queue for a doctor. Defaults to today;
// ?date=YYYY-MM-DD selects another day.
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	doctorID := queue.DoctorID(chi.URLParam(r, "doctorID"))
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	if _, err := h.Doctors.GetDoctor(r.Context(), doctorID); err != nil {
		h.writeQueueError(w, err)
		return
	}

	tokens, err := h.Tokens.TokensByDoctorAndDay(r.Context(), doctorID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tokens", err)
		return
	}

	ordered := queue.OrderForService(tokens, doctorID, day)
	resp := QueueDTO{
		DoctorID: string(doctorID),
		Date:     day.String(),
		Tokens:   toTokenDTOs(ordered),
	}
	if next, ok := queue.NextPatient(tokens, doctorID, day); ok {
		dto := toTokenDTO(next)
		resp.Next = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelToken cancels a token and frees its slot.
func (h *Handler) CancelToken(w http.ResponseWriter, r *http.Request) {
	id := queue.TokenID(chi.URLParam(r, "id"))

	token, err := h.Lifecycle.Cancel(r.Context(), id)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenDTO(*token))
}

// UpdateTokenStatus transitions a token to completed or noshow. Cancellation
// goes through the dedicated cancel endpoint (it has ledger side effects the
// front desk should trigger deliberately), but is accepted here too.
func (h *Handler) UpdateTokenStatus(w http.ResponseWriter, r *http.Request) {
	id := queue.TokenID(chi.URLParam(r, "id"))

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := queue.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status", err)
		return
	}

	token, err := h.Lifecycle.Transition(r.Context(), id, status)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenDTO(*token))
}

// =============================================================================
// SLOT HANDLERS
// =============================================================================

// GetSlotStatus returns occupancy and capacity for a doctor-day. A day with
// no bookings yet reads as occupied 0, capacity 0, matching a ledger entry
// that has not been initialized.
func (h *Handler) GetSlotStatus(w http.ResponseWriter, r *http.Request) {
	doctorID := queue.DoctorID(chi.URLParam(r, "doctorID"))
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	if _, err := h.Doctors.GetDoctor(r.Context(), doctorID); err != nil {
		h.writeQueueError(w, err)
		return
	}

	entry, err := h.Admissions.SlotStatus(r.Context(), doctorID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read slot status", err)
		return
	}

	available := entry.Capacity - entry.Occupied
	if available < 0 {
		available = 0
	}
	writeJSON(w, http.StatusOK, SlotStatusDTO{
		DoctorID:  string(doctorID),
		Date:      day.String(),
		Occupied:  entry.Occupied,
		Capacity:  entry.Capacity,
		Available: available,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// dayParam reads the optional ?date=YYYY-MM-DD query, defaulting to today.
func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (queue.Day, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return queue.DayOf(h.Clock()), true
	}
	day, err := queue.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return queue.Day{}, false
	}
	return day, true
}

// writeQueueError maps engine errors onto HTTP statuses.
func (h *Handler) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case queue.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, queue.ErrSlotFull):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "slot_full"})
	case errors.Is(err, queue.ErrAlreadyCancelled):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "already_cancelled"})
	case errors.Is(err, queue.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "invalid_transition"})
	case queue.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case queue.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "retry"})
	default:
		h.Logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
