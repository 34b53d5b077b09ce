package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/models"
	"github.com/KAsare1/telecare-server/db"
	"github.com/KAsare1/telecare-server/service/notification"
)

var (
	ErrMissingParty  = errors.New("patientId and docId are required")
	ErrRequestExists = errors.New("request already exists")
	ErrInvalidStatus = errors.New("invalid status")
	ErrNotFound      = errors.New("request not found")
)

type RequestStore interface {
	CreateConnectionRequest(ctx context.Context, req *models.ConnectionRequest) error
	GetConnectionRequest(ctx context.Context, id string) (*models.ConnectionRequest, error)
	FindConnectionRequest(ctx context.Context, patientID, docID string) (*models.ConnectionRequest, error)
	UpdateConnectionStatus(ctx context.Context, id, status string) (*models.ConnectionRequest, error)
	ConnectionRequestsForDoctor(ctx context.Context, docID string) ([]models.ConnectionRequest, error)
	ConnectionRequestsForPatient(ctx context.Context, patientID string) ([]models.ConnectionRequest, error)
	ConnectedDoctors(ctx context.Context, patientID string) ([]models.Doctor, error)
}

// Announcer pushes an acceptance to the patient's live connection, if any.
type Announcer interface {
	ConnectionAccepted(patientID, docID string) bool
}

type Service struct {
	store     RequestStore
	announcer Announcer
	bridge    notification.Bridge
	logger    zerolog.Logger
}

// NewService builds the request workflow. announcer and bridge may be nil.
func NewService(store RequestStore, announcer Announcer, bridge notification.Bridge, logger zerolog.Logger) *Service {
	if bridge == nil {
		bridge = notification.NopBridge{}
	}
	return &Service{
		store:     store,
		announcer: announcer,
		bridge:    bridge,
		logger:    logger.With().Str("component", "connection").Logger(),
	}
}

// Send opens a request from patientID to docID. A previously rejected
// request for the pair goes back to pending.
func (s *Service) Send(ctx context.Context, patientID, docID string) (*models.ConnectionRequest, error) {
	if patientID == "" || docID == "" {
		return nil, ErrMissingParty
	}

	existing, err := s.store.FindConnectionRequest(ctx, patientID, docID)
	switch {
	case err == nil && existing.Status == models.ConnectionRejected:
		return s.store.UpdateConnectionStatus(ctx, existing.ID, models.ConnectionPending)
	case err == nil:
		return nil, ErrRequestExists
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("find request: %w", err)
	}

	req := &models.ConnectionRequest{
		ID:        uuid.New().String(),
		PatientID: patientID,
		DocID:     docID,
		Status:    models.ConnectionPending,
	}
	if err := s.store.CreateConnectionRequest(ctx, req); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			return nil, ErrRequestExists
		}
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.logger.Info().Str("request_id", req.ID).Str("patient_id", patientID).Str("doc_id", docID).Msg("connection requested")
	return req, nil
}

// UpdateStatus moves a request to accepted or rejected. Acceptance is
// announced to the patient over the signaling channel and the bridge.
func (s *Service) UpdateStatus(ctx context.Context, requestID, status string) (*models.ConnectionRequest, error) {
	if status != models.ConnectionAccepted && status != models.ConnectionRejected {
		return nil, ErrInvalidStatus
	}

	req, err := s.store.UpdateConnectionStatus(ctx, requestID, status)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	if status == models.ConnectionAccepted {
		delivered := false
		if s.announcer != nil {
			delivered = s.announcer.ConnectionAccepted(req.PatientID, req.DocID)
		}
		s.bridge.ConnectionAccepted(ctx, req.PatientID, req.DocID)
		s.logger.Info().Str("request_id", req.ID).Bool("delivered", delivered).Msg("connection accepted")
	}
	return req, nil
}

func (s *Service) ForDoctor(ctx context.Context, docID string) ([]models.ConnectionRequest, error) {
	out, err := s.store.ConnectionRequestsForDoctor(ctx, docID)
	if out == nil {
		out = []models.ConnectionRequest{}
	}
	return out, err
}

func (s *Service) ForPatient(ctx context.Context, patientID string) ([]models.ConnectionRequest, error) {
	out, err := s.store.ConnectionRequestsForPatient(ctx, patientID)
	if out == nil {
		out = []models.ConnectionRequest{}
	}
	return out, err
}

func (s *Service) ConnectedDoctors(ctx context.Context, patientID string) ([]models.Doctor, error) {
	out, err := s.store.ConnectedDoctors(ctx, patientID)
	if out == nil {
		out = []models.Doctor{}
	}
	return out, err
}
