/*
demo.go - Demo data seeding

PURPOSE:
  Loads a small set of sample doctors so a fresh install has something to
  book against. Used by the booking frontend's simulation page and by
  manual testing; idempotent per call only in the sense that it always
  creates fresh doctors.
*/
package api

import (
	"net/http"

	"github.com/warp/opd-queue/queue"
)

var demoDoctors = []struct {
	Name      string
	Specialty string
	SlotTime  string
	Capacity  int
}{
	{"Dr. Asha Rao", "General Medicine", "9-12", 20},
	{"Dr. Vikram Shetty", "Cardiology", "10-13", 10},
	{"Dr. Meera Nair", "Pediatrics", "14-17", 15},
}

// SeedDemo registers the sample doctors and returns them.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	created := make([]DoctorDTO, 0, len(demoDoctors))
	for _, d := range demoDoctors {
		doctor := queue.Doctor{
			ID:            queue.NewDoctorID(),
			Name:          d.Name,
			Specialty:     d.Specialty,
			SlotTime:      d.SlotTime,
			DailyCapacity: d.Capacity,
			CreatedAt:     h.Clock(),
		}
		if err := h.Doctors.SaveDoctor(r.Context(), doctor); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed doctors", err)
			return
		}
		created = append(created, toDoctorDTO(doctor))
	}

	h.Logger.Info().Int("doctors", len(created)).Msg("demo data seeded")
	writeJSON(w, http.StatusCreated, created)
}
