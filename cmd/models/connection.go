package models

import (
	"time"
)

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionRejected = "rejected"
)

// ConnectionRequest gates booking: a patient books with a doctor only after
// the doctor accepted the patient's request.
type ConnectionRequest struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	PatientID string    `gorm:"column:patient_id;size:64;not null;uniqueIndex:idx_connection_pair,priority:1" json:"patientId"`
	DocID     string    `gorm:"column:doc_id;size:64;not null;uniqueIndex:idx_connection_pair,priority:2" json:"docId"`
	Status    string    `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`

	Patient *Patient `gorm:"foreignKey:PatientID;references:ID" json:"patient,omitempty"`
	Doctor  *Doctor  `gorm:"foreignKey:DocID;references:ID" json:"doctor,omitempty"`
}

func (ConnectionRequest) TableName() string {
	return "connection_requests"
}

func ValidConnectionStatus(s string) bool {
	switch s {
	case ConnectionPending, ConnectionAccepted, ConnectionRejected:
		return true
	}
	return false
}
