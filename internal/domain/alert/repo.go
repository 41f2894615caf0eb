package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AlertRepository interface {
	Create(ctx context.Context, a *EmergencyAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error)
	// Resolve persists the resolution fields and status of a, provided the
	// stored status is one of from. Otherwise it returns ErrInvalidTransition
	// and writes nothing.
	Resolve(ctx context.Context, a *EmergencyAlert, from []Status) error
	SetPhase(ctx context.Context, id uuid.UUID, phase Phase) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*EmergencyAlert, int, error)
	// ListIncomplete returns ACTIVE alerts created before cutoff whose fan-out
	// never reached COMPLETE.
	ListIncomplete(ctx context.Context, cutoff time.Time) ([]*EmergencyAlert, error)
}

type DeliveryRepository interface {
	Record(ctx context.Context, o *DeliveryOutcome) error
	ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*DeliveryOutcome, error)
}

// DirectoryRepository reads the patient, clinic and staff records owned by the
// rest of the clinic system.
type DirectoryRepository interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	ListStaff(ctx context.Context, clinicID uuid.UUID, roles []StaffRole) ([]*StaffMember, error)
}
