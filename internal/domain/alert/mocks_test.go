package alert

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// -- Mock Alert Repository --

type mockAlertRepo struct {
	mu      sync.Mutex
	store   map[uuid.UUID]EmergencyAlert
	phases  []Phase
	failSet error
	// readDelay widens the gap between GetByID and Resolve.
	readDelay time.Duration
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{store: make(map[uuid.UUID]EmergencyAlert)}
}

func (m *mockAlertRepo) Create(_ context.Context, a *EmergencyAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.store[a.ID] = *a
	return nil
}

func (m *mockAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return &a, nil
}

func (m *mockAlertRepo) Resolve(_ context.Context, a *EmergencyAlert, from []Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[a.ID]
	if !ok {
		return ErrAlertNotFound
	}
	if !slices.Contains(from, stored.Status) {
		return ErrInvalidTransition
	}
	stored.Status = a.Status
	stored.ResolvedAt = a.ResolvedAt
	stored.ResolutionNotes = a.ResolutionNotes
	stored.ResolvedBy = a.ResolvedBy
	m.store[a.ID] = stored
	return nil
}

func (m *mockAlertRepo) SetPhase(_ context.Context, id uuid.UUID, phase Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	stored, ok := m.store[id]
	if !ok {
		return ErrAlertNotFound
	}
	stored.NotificationPhase = phase
	m.store[id] = stored
	m.phases = append(m.phases, phase)
	return nil
}

func (m *mockAlertRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*EmergencyAlert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*EmergencyAlert
	for _, a := range m.store {
		if filter.ClinicID != uuid.Nil && a.ClinicID != filter.ClinicID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		a := a
		all = append(all, &a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *mockAlertRepo) ListIncomplete(_ context.Context, cutoff time.Time) ([]*EmergencyAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*EmergencyAlert
	for _, a := range m.store {
		if a.Status == StatusActive && a.NotificationPhase != PhaseComplete && a.CreatedAt.Before(cutoff) {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m *mockAlertRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// -- Mock Delivery Repository --

type mockDeliveryRepo struct {
	mu    sync.Mutex
	items []*DeliveryOutcome
}

func (m *mockDeliveryRepo) Record(_ context.Context, o *DeliveryOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockDeliveryRepo) ListByAlert(_ context.Context, alertID uuid.UUID) ([]*DeliveryOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryOutcome
	for _, o := range m.items {
		if o.AlertID == alertID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -- Mock Directory --

type mockDirectory struct {
	patients map[uuid.UUID]*Patient
	clinics  map[uuid.UUID]*Clinic
	staff    []*StaffMember
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		patients: make(map[uuid.UUID]*Patient),
		clinics:  make(map[uuid.UUID]*Clinic),
	}
}

func (m *mockDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *mockDirectory) GetClinic(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return c, nil
}

func (m *mockDirectory) ListStaff(_ context.Context, clinicID uuid.UUID, roles []StaffRole) ([]*StaffMember, error) {
	var out []*StaffMember
	for _, s := range m.staff {
		if s.ClinicID != clinicID {
			continue
		}
		for _, r := range roles {
			if s.Role == r {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

// -- Mock Publisher --

type publishedEvent struct {
	clinicID string
	event    string
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (m *mockPublisher) NotifyClinic(_ context.Context, clinicID, event string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{clinicID: clinicID, event: event})
	return nil
}

func (m *mockPublisher) Events() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedEvent, len(m.events))
	copy(out, m.events)
	return out
}
