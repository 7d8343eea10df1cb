/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the queue engine, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/opd-queue/queue"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// DoctorDTO represents a doctor in API responses.
type DoctorDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Specialty     string `json:"specialty"`
	SlotTime      string `json:"slot_time"`
	DailyCapacity int    `json:"daily_capacity"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// CreateDoctorRequest is the request to register a doctor.
type CreateDoctorRequest struct {
	Name          string `json:"name"`
	Specialty     string `json:"specialty"`
	SlotTime      string `json:"slot_time"`
	DailyCapacity int    `json:"daily_capacity"`
}

// AdmitTokenRequest is the request to admit a patient into a queue.
type AdmitTokenRequest struct {
	DoctorID    string `json:"doctor_id"`
	PatientName string `json:"patient_name"`
	Contact     string `json:"contact,omitempty"`
	Source      string `json:"source"`
}

// TokenDTO represents a token in API responses.
type TokenDTO struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	PatientName string `json:"patient_name"`
	Contact     string `json:"contact,omitempty"`
	Source      string `json:"source"`
	DoctorID    string `json:"doctor_id"`
	SlotTime    string `json:"slot_time"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// UpdateStatusRequest is the request to transition a token.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// QueueDTO is the ordered queue for one doctor-day.
type QueueDTO struct {
	DoctorID string     `json:"doctor_id"`
	Date     string     `json:"date"`
	Tokens   []TokenDTO `json:"tokens"`
	// Next is the head of the waiting sub-sequence, if anyone is waiting.
	Next *TokenDTO `json:"next,omitempty"`
}

// SlotStatusDTO is the occupancy view for one doctor-day.
type SlotStatusDTO struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Occupied  int    `json:"occupied"`
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toDoctorDTO(d queue.Doctor) DoctorDTO {
	return DoctorDTO{
		ID:            string(d.ID),
		Name:          d.Name,
		Specialty:     d.Specialty,
		SlotTime:      d.SlotTime,
		DailyCapacity: d.DailyCapacity,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
	}
}

func toTokenDTO(t queue.Token) TokenDTO {
	return TokenDTO{
		ID:          string(t.ID),
		Number:      t.Number,
		PatientName: t.PatientName,
		Contact:     t.Contact,
		Source:      string(t.Source),
		DoctorID:    string(t.DoctorID),
		SlotTime:    t.SlotTime,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

func toTokenDTOs(tokens []queue.Token) []TokenDTO {
	dtos := make([]TokenDTO, len(tokens))
	for i, t := range tokens {
		dtos[i] = toTokenDTO(t)
	}
	return dtos
}
