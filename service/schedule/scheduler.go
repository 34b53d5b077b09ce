package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/models"
	"github.com/KAsare1/telecare-server/db"
	"github.com/KAsare1/telecare-server/service/metrics"
)

// BookingStore is the durable record store behind the scheduler. A
// second CreateAppointment for the same (doctor, instant) must fail with
// db.ErrDuplicateKey.
type BookingStore interface {
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	AppointmentsForDoctorBetween(ctx context.Context, docID string, from, to time.Time) ([]models.Appointment, error)
	AppointmentsForDoctor(ctx context.Context, docID string) ([]models.Appointment, error)
	AppointmentsForPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
}

type BookingNotifier interface {
	AppointmentBooked(ctx context.Context, appt models.Appointment)
}

type SlotAvailability struct {
	Time     string `json:"time"`
	IsBooked bool   `json:"isBooked"`
}

type BookingRequest struct {
	PatientID string `json:"patientId"`
	DocID     string `json:"docId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type Scheduler struct {
	store    BookingStore
	policy   *Policy
	now      func() time.Time
	notifier BookingNotifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

type Option func(*Scheduler)

// WithClock replaces time.Now for the past-slot check.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithNotifier(n BookingNotifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(store BookingStore, policy *Policy, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Policy() *Policy {
	return s.policy
}

// GetAvailableSlots reports, for every fixed slot on date, whether the
// doctor already has an appointment at that instant.
func (s *Scheduler) GetAvailableSlots(ctx context.Context, docID, date string) ([]SlotAvailability, error) {
	day, err := s.policy.ParseDate(date)
	if err != nil {
		return nil, err
	}
	from, to := s.policy.DayBounds(day)

	booked, err := s.store.AppointmentsForDoctorBetween(ctx, docID, from, to)
	if err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Str("date", date).Msg("failed to load appointments")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	taken := make(map[int64]bool, len(booked))
	for _, a := range booked {
		taken[a.ScheduleTime.Unix()] = true
	}

	labels := s.policy.EnumerateSlots(day)
	out := make([]SlotAvailability, 0, len(labels))
	for _, label := range labels {
		at, err := s.policy.ResolveInstant(day, label)
		if err != nil {
			return nil, err
		}
		out = append(out, SlotAvailability{Time: label, IsBooked: taken[at.Unix()]})
	}
	return out, nil
}

// BookAppointment reserves (doctor, instant) for the patient. The store's
// unique index decides conflicts; there is no read before the insert.
// The appointment id is generated up front and doubles as the room id.
func (s *Scheduler) BookAppointment(ctx context.Context, req BookingRequest) (*models.Appointment, error) {
	appt, err := s.book(ctx, req)
	switch {
	case err == nil:
		s.metrics.ObserveBooking(metrics.OutcomeBooked)
	case errors.Is(err, ErrSlotConflict):
		s.metrics.ObserveBooking(metrics.OutcomeConflict)
	case IsClientError(err):
		s.metrics.ObserveBooking(metrics.OutcomeRejected)
	default:
		s.metrics.ObserveBooking(metrics.OutcomeFailed)
	}
	return appt, err
}

func (s *Scheduler) book(ctx context.Context, req BookingRequest) (*models.Appointment, error) {
	log := s.logger.With().Str("doc_id", req.DocID).Str("patient_id", req.PatientID).Logger()

	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.DocID) == "" {
		return nil, ErrMissingParty
	}
	day, err := s.policy.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	at, err := s.policy.ResolveInstant(day, req.Time)
	if err != nil {
		log.Debug().Err(err).Msg("rejected booking")
		return nil, err
	}
	if !at.After(s.now()) {
		log.Info().Time("schedule_time", at).Msg("rejected booking in the past")
		return nil, ErrPastSlot
	}
	if !s.policy.Offers(day, req.Time) {
		log.Info().Str("time", req.Time).Msg("rejected off-grid booking")
		return nil, fmt.Errorf("%w: %s", ErrSlotNotOffered, req.Time)
	}

	id := uuid.NewString()
	appt := &models.Appointment{
		ID:           id,
		RoomID:       id,
		PatientID:    req.PatientID,
		DocID:        req.DocID,
		ScheduleTime: at,
	}
	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			log.Info().Time("schedule_time", at).Msg("slot already booked")
			return nil, ErrSlotConflict
		}
		log.Error().Err(err).Time("schedule_time", at).Msg("booking failed")
		return nil, fmt.Errorf("%w: %v", ErrBookingFailed, err)
	}
	if !appt.Provisioned() {
		log.Error().Str("appointment_id", appt.ID).Msg("appointment stored without room")
		return nil, fmt.Errorf("%w: appointment %s has no room", ErrBookingFailed, appt.ID)
	}

	log.Info().Str("appointment_id", appt.ID).Time("schedule_time", at).Msg("appointment booked")
	if s.notifier != nil {
		s.notifier.AppointmentBooked(ctx, *appt)
	}
	return appt, nil
}

func (s *Scheduler) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("appointment_id", id).Msg("appointment lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return appt, nil
}

func (s *Scheduler) ListAppointmentsForDoctor(ctx context.Context, docID string) ([]models.Appointment, error) {
	out, err := s.store.AppointmentsForDoctor(ctx, docID)
	if err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("doctor appointments lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return nonNil(out), nil
}

func (s *Scheduler) ListAppointmentsForPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	out, err := s.store.AppointmentsForPatient(ctx, patientID)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("patient appointments lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return nonNil(out), nil
}

// ResolveRoom returns the two participants of the call room roomID.
func (s *Scheduler) ResolveRoom(ctx context.Context, roomID string) (docID, patientID string, err error) {
	appt, err := s.GetAppointment(ctx, roomID)
	if err != nil {
		return "", "", err
	}
	return appt.DocID, appt.PatientID, nil
}

func nonNil(in []models.Appointment) []models.Appointment {
	if in == nil {
		return []models.Appointment{}
	}
	return in
}
