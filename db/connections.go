package db

import (
	"context"
	"time"

	"github.com/KAsare1/telecare-server/cmd/models"
)

func (s *Store) CreateConnectionRequest(ctx context.Context, req *models.ConnectionRequest) error {
	return translate(s.db.WithContext(ctx).Create(req).Error)
}

func (s *Store) GetConnectionRequest(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (s *Store) FindConnectionRequest(ctx context.Context, patientID, docID string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND doc_id = ?", patientID, docID).
		First(&req).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, id, status string) (*models.ConnectionRequest, error) {
	result := s.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetConnectionRequest(ctx, id)
}

func (s *Store) ConnectionRequestsForDoctor(ctx context.Context, docID string) ([]models.ConnectionRequest, error) {
	var out []models.ConnectionRequest
	err := s.db.WithContext(ctx).
		Preload("Patient").
		Where("doc_id = ?", docID).
		Order("created_at desc").
		Find(&out).Error
	return out, translate(err)
}

func (s *Store) ConnectionRequestsForPatient(ctx context.Context, patientID string) ([]models.ConnectionRequest, error) {
	var out []models.ConnectionRequest
	err := s.db.WithContext(ctx).
		Preload("Doctor").
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Find(&out).Error
	return out, translate(err)
}

// ConnectedDoctors returns doctors that accepted the patient's request.
func (s *Store) ConnectedDoctors(ctx context.Context, patientID string) ([]models.Doctor, error) {
	var out []models.Doctor
	err := s.db.WithContext(ctx).
		Joins("JOIN connection_requests ON connection_requests.doc_id = doctors.id").
		Where("connection_requests.patient_id = ? AND connection_requests.status = ?", patientID, models.ConnectionAccepted).
		Order("doctors.name asc").
		Find(&out).Error
	return out, translate(err)
}
