package appointment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/utils"
	"github.com/KAsare1/telecare-server/service/schedule"
)

type AppointmentHandler struct {
	scheduler *schedule.Scheduler
	limiter   *utils.RateLimiter
	secret    string
	logger    zerolog.Logger
}

// NewAppointmentHandler wires the booking endpoints. limiter may be nil;
// an empty secret leaves booking unauthenticated.
func NewAppointmentHandler(scheduler *schedule.Scheduler, limiter *utils.RateLimiter, secret string, logger zerolog.Logger) *AppointmentHandler {
	return &AppointmentHandler{scheduler: scheduler, limiter: limiter, secret: secret, logger: logger}
}

func (h *AppointmentHandler) RegisterRoutes(router *mux.Router) {
	var book http.Handler = http.HandlerFunc(h.BookAppointment)
	if h.limiter != nil {
		book = h.limiter.Middleware(book)
	}
	book = utils.PartyMiddleware(h.secret)(book)
	router.Handle("/appointments/book", book).Methods("POST")
	router.HandleFunc("/appointments/slots/{docId}", h.GetAvailableSlots).Methods("GET")
	router.HandleFunc("/appointments/doctor/{docId}", h.GetDoctorAppointments).Methods("GET")
	router.HandleFunc("/appointments/patient/{patientId}", h.GetPatientAppointments).Methods("GET")
	router.HandleFunc("/appointments/{id}", h.GetAppointment).Methods("GET")
}

func (h *AppointmentHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req schedule.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("malformed booking request")
		utils.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if party, err := utils.GetPartyIDFromContext(r.Context()); err == nil && party != req.PatientID {
		utils.WriteMessage(w, http.StatusForbidden, "Cannot book for another patient")
		return
	}

	appt, err := h.scheduler.BookAppointment(r.Context(), req)
	if err != nil {
		status, message := bookingError(err)
		utils.WriteMessage(w, status, message)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"message":     "Appointment booked successfully",
		"appointment": appt,
	})
}

// bookingError maps scheduler errors to a status and a message that is
// safe to show an untrusted caller.
func bookingError(err error) (int, string) {
	switch {
	case errors.Is(err, schedule.ErrPastSlot):
		return http.StatusBadRequest, "Cannot book appointment in the past"
	case errors.Is(err, schedule.ErrSlotConflict):
		return http.StatusBadRequest, "Slot already booked"
	case errors.Is(err, schedule.ErrSlotNotOffered):
		return http.StatusBadRequest, "Slot is not offered"
	case errors.Is(err, schedule.ErrInvalidSlotFormat):
		return http.StatusBadRequest, "Invalid time format, expected HH:MM AM|PM"
	case errors.Is(err, schedule.ErrMissingDate):
		return http.StatusBadRequest, "Date is required"
	case errors.Is(err, schedule.ErrInvalidDate):
		return http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD"
	case errors.Is(err, schedule.ErrMissingParty):
		return http.StatusBadRequest, "patientId and docId are required"
	}
	return http.StatusInternalServerError, "Booking failed"
}

func (h *AppointmentHandler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docId"]

	slots, err := h.scheduler.GetAvailableSlots(r.Context(), docID, r.URL.Query().Get("date"))
	switch {
	case errors.Is(err, schedule.ErrMissingDate):
		utils.WriteMessage(w, http.StatusBadRequest, "Date is required")
		return
	case errors.Is(err, schedule.ErrInvalidDate):
		utils.WriteMessage(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	case err != nil:
		utils.WriteMessage(w, http.StatusInternalServerError, "Could not fetch slots")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"availableSlots": slots,
	})
}

func (h *AppointmentHandler) GetDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.scheduler.ListAppointmentsForDoctor(r.Context(), mux.Vars(r)["docId"])
	if err != nil {
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch appointments")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"appointments": appointments})
}

func (h *AppointmentHandler) GetPatientAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.scheduler.ListAppointmentsForPatient(r.Context(), mux.Vars(r)["patientId"])
	if err != nil {
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch appointments")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"appointments": appointments})
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.scheduler.GetAppointment(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		utils.WriteMessage(w, http.StatusNotFound, "Appointment not found")
		return
	case err != nil:
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch appointment")
		return
	}
	utils.WriteJSON(w, http.StatusOK, appt)
}
