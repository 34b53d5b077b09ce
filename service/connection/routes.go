package connection

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/utils"
)

type ConnectionHandler struct {
	service *Service
	logger  zerolog.Logger
}

func NewConnectionHandler(service *Service, logger zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, logger: logger}
}

func (h *ConnectionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/connection/send", h.SendRequest).Methods("POST")
	router.HandleFunc("/connection/update-status", h.UpdateStatus).Methods("POST")
	router.HandleFunc("/connection/doctor/{docId}", h.GetDoctorRequests).Methods("GET")
	router.HandleFunc("/connection/patient/{patientId}", h.GetPatientRequests).Methods("GET")
	router.HandleFunc("/connection/connected/{patientId}", h.GetConnectedDoctors).Methods("GET")
}

type sendRequest struct {
	PatientID string `json:"patientId"`
	DocID     string `json:"docId"`
}

type statusRequest struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := h.service.Send(r.Context(), body.PatientID, body.DocID)
	switch {
	case errors.Is(err, ErrMissingParty):
		utils.WriteMessage(w, http.StatusBadRequest, "patientId and docId are required")
		return
	case errors.Is(err, ErrRequestExists):
		utils.WriteMessage(w, http.StatusBadRequest, "Request already exists")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("send connection request")
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to send request")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{"request": req})
}

func (h *ConnectionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := h.service.UpdateStatus(r.Context(), body.RequestID, body.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		utils.WriteMessage(w, http.StatusBadRequest, "Invalid status")
		return
	case errors.Is(err, ErrNotFound):
		utils.WriteMessage(w, http.StatusNotFound, "Request not found")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("request_id", body.RequestID).Msg("update connection status")
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to update request")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"request": req})
}

func (h *ConnectionHandler) GetDoctorRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ForDoctor(r.Context(), mux.Vars(r)["docId"])
	if err != nil {
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch requests")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *ConnectionHandler) GetPatientRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ForPatient(r.Context(), mux.Vars(r)["patientId"])
	if err != nil {
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch requests")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *ConnectionHandler) GetConnectedDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.service.ConnectedDoctors(r.Context(), mux.Vars(r)["patientId"])
	if err != nil {
		utils.WriteMessage(w, http.StatusInternalServerError, "Failed to fetch doctors")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}
