package models

import (
	"time"
)

// Appointment is a booked consultation. Its ID doubles as the call room id.
// (DocID, ScheduleTime) is unique; the index is the only arbiter of
// concurrent bookings for the same slot.
type Appointment struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	PatientID    string    `gorm:"column:patient_id;size:64;not null;index" json:"patientId"`
	DocID        string    `gorm:"column:doc_id;size:64;not null;uniqueIndex:idx_doctor_schedule,priority:1" json:"docId"`
	ScheduleTime time.Time `gorm:"column:schedule_time;not null;uniqueIndex:idx_doctor_schedule,priority:2" json:"scheduleTime"`
	RoomID       string    `gorm:"column:room_id;size:36;not null" json:"roomId"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updatedAt"`

	Patient *Patient `gorm:"foreignKey:PatientID;references:ID" json:"patient,omitempty"`
	Doctor  *Doctor  `gorm:"foreignKey:DocID;references:ID" json:"doctor,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// Provisioned reports whether the appointment carries its room identity.
func (a *Appointment) Provisioned() bool {
	return a.ID != "" && a.RoomID == a.ID
}
