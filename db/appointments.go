package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/KAsare1/telecare-server/cmd/models"
)

// Store is the gorm-backed record store for appointments, connection
// requests and the profile directory.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateAppointment inserts without a prior existence check; a taken
// (doctor, instant) surfaces as ErrDuplicateKey from the unique index.
func (s *Store) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var a models.Appointment
	err := s.db.WithContext(ctx).
		Preload("Patient").Preload("Doctor").
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// AppointmentsForDoctorBetween returns the doctor's appointments with
// from <= schedule_time <= to.
func (s *Store) AppointmentsForDoctorBetween(ctx context.Context, docID string, from, to time.Time) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Where("doc_id = ? AND schedule_time >= ? AND schedule_time <= ?", docID, from, to).
		Order("schedule_time asc").
		Find(&out).Error
	return out, translate(err)
}

func (s *Store) AppointmentsForDoctor(ctx context.Context, docID string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Preload("Patient", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "phone") }).
		Preload("Doctor", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "hospital") }).
		Where("doc_id = ?", docID).
		Order("schedule_time asc").
		Find(&out).Error
	return out, translate(err)
}

func (s *Store) AppointmentsForPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Preload("Doctor", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "phone", "hospital") }).
		Preload("Patient", func(tx *gorm.DB) *gorm.DB { return tx.Select("id", "name", "phone") }).
		Where("patient_id = ?", patientID).
		Order("schedule_time asc").
		Find(&out).Error
	return out, translate(err)
}
