package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KAsare1/telecare-server/cmd/models"
)

// MemoryStore is a single-process store with the same uniqueness contract
// as the Postgres schema. Used for STORE=memory and in tests.
type MemoryStore struct {
	mu sync.RWMutex

	appointments map[string]models.Appointment
	slots        map[string]string // doc|instant -> appointment id

	requests map[string]models.ConnectionRequest
	pairs    map[string]string // patient|doc -> request id

	doctors  map[string]models.Doctor
	patients map[string]models.Patient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[string]models.Appointment),
		slots:        make(map[string]string),
		requests:     make(map[string]models.ConnectionRequest),
		pairs:        make(map[string]string),
		doctors:      make(map[string]models.Doctor),
		patients:     make(map[string]models.Patient),
	}
}

func slotKey(docID string, at time.Time) string {
	return fmt.Sprintf("%s|%d", docID, at.UnixNano())
}

func pairKey(patientID, docID string) string {
	return patientID + "|" + docID
}

func (m *MemoryStore) AddDoctor(d models.Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryStore) AddPatient(p models.Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey(a.DocID, a.ScheduleTime)
	if _, taken := m.slots[key]; taken {
		return fmt.Errorf("%w: appointments (doc_id, schedule_time)", ErrDuplicateKey)
	}
	if _, taken := m.appointments[a.ID]; taken {
		return fmt.Errorf("%w: appointments (id)", ErrDuplicateKey)
	}

	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	stored := *a
	stored.Patient, stored.Doctor = nil, nil
	m.appointments[a.ID] = stored
	m.slots[key] = a.ID
	return nil
}

func (m *MemoryStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.join(&a)
	return &a, nil
}

func (m *MemoryStore) AppointmentsForDoctorBetween(ctx context.Context, docID string, from, to time.Time) ([]models.Appointment, error) {
	return m.filterAppointments(func(a models.Appointment) bool {
		return a.DocID == docID && !a.ScheduleTime.Before(from) && !a.ScheduleTime.After(to)
	}, false), nil
}

func (m *MemoryStore) AppointmentsForDoctor(ctx context.Context, docID string) ([]models.Appointment, error) {
	return m.filterAppointments(func(a models.Appointment) bool { return a.DocID == docID }, true), nil
}

func (m *MemoryStore) AppointmentsForPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	return m.filterAppointments(func(a models.Appointment) bool { return a.PatientID == patientID }, true), nil
}

func (m *MemoryStore) filterAppointments(keep func(models.Appointment) bool, join bool) []models.Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Appointment
	for _, a := range m.appointments {
		if !keep(a) {
			continue
		}
		if join {
			m.join(&a)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleTime.Before(out[j].ScheduleTime) })
	return out
}

// join must be called with m.mu held.
func (m *MemoryStore) join(a *models.Appointment) {
	if p, ok := m.patients[a.PatientID]; ok {
		a.Patient = &p
	}
	if d, ok := m.doctors[a.DocID]; ok {
		a.Doctor = &d
	}
}

func (m *MemoryStore) CreateConnectionRequest(ctx context.Context, req *models.ConnectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(req.PatientID, req.DocID)
	if _, taken := m.pairs[key]; taken {
		return fmt.Errorf("%w: connection_requests (patient_id, doc_id)", ErrDuplicateKey)
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	stored := *req
	stored.Patient, stored.Doctor = nil, nil
	m.requests[req.ID] = stored
	m.pairs[key] = req.ID
	return nil
}

func (m *MemoryStore) GetConnectionRequest(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (m *MemoryStore) FindConnectionRequest(ctx context.Context, patientID, docID string) (*models.ConnectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pairs[pairKey(patientID, docID)]
	if !ok {
		return nil, ErrNotFound
	}
	req := m.requests[id]
	return &req, nil
}

func (m *MemoryStore) UpdateConnectionStatus(ctx context.Context, id, status string) (*models.ConnectionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	m.requests[id] = req
	return &req, nil
}

func (m *MemoryStore) ConnectionRequestsForDoctor(ctx context.Context, docID string) ([]models.ConnectionRequest, error) {
	return m.filterRequests(func(r models.ConnectionRequest) bool { return r.DocID == docID }), nil
}

func (m *MemoryStore) ConnectionRequestsForPatient(ctx context.Context, patientID string) ([]models.ConnectionRequest, error) {
	return m.filterRequests(func(r models.ConnectionRequest) bool { return r.PatientID == patientID }), nil
}

func (m *MemoryStore) filterRequests(keep func(models.ConnectionRequest) bool) []models.ConnectionRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ConnectionRequest
	for _, r := range m.requests {
		if !keep(r) {
			continue
		}
		if p, ok := m.patients[r.PatientID]; ok {
			r.Patient = &p
		}
		if d, ok := m.doctors[r.DocID]; ok {
			r.Doctor = &d
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) ConnectedDoctors(ctx context.Context, patientID string) ([]models.Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Doctor
	for _, r := range m.requests {
		if r.PatientID != patientID || r.Status != models.ConnectionAccepted {
			continue
		}
		if d, ok := m.doctors[r.DocID]; ok {
			out = append(out, d)
		} else {
			out = append(out, models.Doctor{ID: r.DocID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
