package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/models"
)

// Notification is a message addressed to a single party.
type Notification struct {
	PartyID string                 `json:"partyId"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Bridge informs parties about state changes that happen outside their
// own connection. Implementations must not block the caller for long.
type Bridge interface {
	PartyOnline(ctx context.Context, partyID, role string)
	ConnectionAccepted(ctx context.Context, patientID, docID string)
	AppointmentBooked(ctx context.Context, appt models.Appointment)
}

// LogBridge records every notification in the structured log instead of
// delivering it to a device.
type LogBridge struct {
	logger zerolog.Logger
}

func NewLogBridge(logger zerolog.Logger) *LogBridge {
	return &LogBridge{logger: logger.With().Str("component", "notification").Logger()}
}

func (b *LogBridge) PartyOnline(ctx context.Context, partyID, role string) {
	b.emit(Notification{
		PartyID: partyID,
		Title:   "Online",
		Body:    "Your " + role + " is now available",
		Data:    map[string]interface{}{"type": "party-online", "role": role},
	})
}

func (b *LogBridge) ConnectionAccepted(ctx context.Context, patientID, docID string) {
	b.emit(Notification{
		PartyID: patientID,
		Title:   "Connection accepted",
		Body:    "A doctor accepted your connection request",
		Data:    map[string]interface{}{"type": "connection-accepted", "docId": docID},
	})
}

func (b *LogBridge) AppointmentBooked(ctx context.Context, appt models.Appointment) {
	data := map[string]interface{}{
		"type":          "appointment-booked",
		"appointmentId": appt.ID,
		"scheduleTime":  appt.ScheduleTime.Format(time.RFC3339),
	}
	b.emit(Notification{PartyID: appt.DocID, Title: "New appointment", Body: "A patient booked a consultation", Data: data})
	b.emit(Notification{PartyID: appt.PatientID, Title: "Appointment confirmed", Body: "Your consultation is booked", Data: data})
}

func (b *LogBridge) emit(n Notification) {
	b.logger.Info().
		Str("party_id", n.PartyID).
		Str("title", n.Title).
		Interface("data", n.Data).
		Msg(n.Body)
}

// NopBridge discards every notification.
type NopBridge struct{}

func (NopBridge) PartyOnline(context.Context, string, string) {}
func (NopBridge) ConnectionAccepted(context.Context, string, string) {}
func (NopBridge) AppointmentBooked(context.Context, models.Appointment) {}
