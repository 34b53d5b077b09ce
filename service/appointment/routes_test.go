package appointment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/telecare-server/cmd/models"
	"github.com/KAsare1/telecare-server/cmd/utils"
	"github.com/KAsare1/telecare-server/db"
	"github.com/KAsare1/telecare-server/service/schedule"
)

var clock = func() time.Time { return time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC) }

func setupRouter(t *testing.T, limiter *utils.RateLimiter, secret string) (*mux.Router, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore()
	scheduler := schedule.NewScheduler(store, schedule.NewPolicy(time.UTC), zerolog.Nop(), schedule.WithClock(clock))
	router := mux.NewRouter()
	NewAppointmentHandler(scheduler, limiter, secret, zerolog.Nop()).RegisterRoutes(router)
	return router, store
}

func doJSON(router http.Handler, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

type slotsResponse struct {
	Success        bool                        `json:"success"`
	AvailableSlots []schedule.SlotAvailability `json:"availableSlots"`
}

func TestBookAndListSlots(t *testing.T) {
	router, _ := setupRouter(t, nil, "")

	rec := doJSON(router, http.MethodGet, "/appointments/slots/D1?date=2026-02-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots slotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.True(t, slots.Success)
	require.Len(t, slots.AvailableSlots, 5)
	for _, s := range slots.AvailableSlots {
		assert.False(t, s.IsBooked)
	}

	rec = doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "09:00 AM",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Success     bool               `json:"success"`
		Message     string             `json:"message"`
		Appointment models.Appointment `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "Appointment booked successfully", created.Message)
	assert.Equal(t, created.Appointment.ID, created.Appointment.RoomID)

	rec = doJSON(router, http.MethodGet, "/appointments/slots/D1?date=2026-02-10", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Equal(t, schedule.SlotAvailability{Time: "09:00 AM", IsBooked: true}, slots.AvailableSlots[0])

	rec = doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P2", DocID: "D1", Date: "2026-02-10", Time: "09:00 AM",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Slot already booked", message(t, rec))

	rec = doJSON(router, http.MethodGet, "/appointments/"+created.Appointment.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "D1", got.DocID)

	rec = doJSON(router, http.MethodGet, "/appointments/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookValidationMessages(t *testing.T) {
	router, _ := setupRouter(t, nil, "")

	tests := []struct {
		name    string
		req     schedule.BookingRequest
		status  int
		message string
	}{
		{"past", schedule.BookingRequest{PatientID: "P1", DocID: "D1", Date: "2026-01-10", Time: "09:00 AM"}, http.StatusBadRequest, "Cannot book appointment in the past"},
		{"off grid", schedule.BookingRequest{PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "10:00 AM"}, http.StatusBadRequest, "Slot is not offered"},
		{"bad time", schedule.BookingRequest{PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "noon"}, http.StatusBadRequest, "Invalid time format, expected HH:MM AM|PM"},
		{"no date", schedule.BookingRequest{PatientID: "P1", DocID: "D1", Time: "09:00 AM"}, http.StatusBadRequest, "Date is required"},
		{"no doctor", schedule.BookingRequest{PatientID: "P1", Date: "2026-02-10", Time: "09:00 AM"}, http.StatusBadRequest, "patientId and docId are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPost, "/appointments/book", tt.req, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, message(t, rec))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/appointments/book", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotsRequireDate(t *testing.T) {
	router, _ := setupRouter(t, nil, "")
	rec := doJSON(router, http.MethodGet, "/appointments/slots/D1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Date is required", message(t, rec))
}

func TestConcurrentBookingOverHTTP(t *testing.T) {
	router, _ := setupRouter(t, nil, "")

	const n = 25
	codes := make([]int, n)
	messages := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
				PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "01:00 PM",
			}, nil)
			codes[i] = rec.Code
			var body map[string]interface{}
			json.Unmarshal(rec.Body.Bytes(), &body)
			messages[i], _ = body["message"].(string)
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for i := range codes {
		switch {
		case codes[i] == http.StatusCreated:
			created++
		case codes[i] == http.StatusBadRequest && messages[i] == "Slot already booked":
			conflicts++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
}

func TestListingsJoinDirectory(t *testing.T) {
	router, store := setupRouter(t, nil, "")
	store.AddDoctor(models.Doctor{ID: "D1", Name: "Dr. Asante", Hospital: "37 Military"})
	store.AddPatient(models.Patient{ID: "P1", Name: "Esi", Phone: "0550000000"})

	rec := doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "03:00 PM",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var list struct {
		Appointments []models.Appointment `json:"appointments"`
	}
	rec = doJSON(router, http.MethodGet, "/appointments/doctor/D1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, "0550000000", list.Appointments[0].Patient.Phone)

	rec = doJSON(router, http.MethodGet, "/appointments/patient/P1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Appointments, 1)
	assert.Equal(t, "37 Military", list.Appointments[0].Doctor.Hospital)

	rec = doJSON(router, http.MethodGet, "/appointments/patient/nobody", nil, nil)
	assert.JSONEq(t, `{"appointments":[]}`, rec.Body.String())
}

func TestBookingRateLimited(t *testing.T) {
	router, _ := setupRouter(t, utils.NewRateLimiter(0.001, 2), "")

	times := []string{"09:00 AM", "11:00 AM", "01:00 PM"}
	var last *httptest.ResponseRecorder
	for _, tm := range times {
		last = doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
			PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: tm,
		}, nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestBookingWithToken(t *testing.T) {
	const secret = "booking-secret"
	router, _ := setupRouter(t, nil, secret)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "P1"}).SignedString([]byte(secret))
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + tok}

	rec := doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "09:00 AM",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P2", DocID: "D1", Date: "2026-02-10", Time: "09:00 AM",
	}, auth)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(router, http.MethodPost, "/appointments/book", schedule.BookingRequest{
		PatientID: "P1", DocID: "D1", Date: "2026-02-10", Time: "09:00 AM",
	}, auth)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
