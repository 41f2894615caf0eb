package alert

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusResolved, true},
		{StatusResolved, StatusResolved, false},
		{StatusResolved, StatusActive, false},
		{StatusActive, StatusActive, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseEmergencyType(t *testing.T) {
	got, err := ParseEmergencyType(" medical ")
	if err != nil || got != TypeMedical {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := ParseEmergencyType("FIRE"); !errors.Is(err, ErrInvalidEmergencyType) {
		t.Errorf("expected ErrInvalidEmergencyType, got %v", err)
	}
	if _, err := ParseEmergencyType(""); !errors.Is(err, ErrInvalidEmergencyType) {
		t.Errorf("expected ErrInvalidEmergencyType for empty input, got %v", err)
	}
}

func TestDurationMinutes(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := created.Add(d)
		return &v
	}

	tests := []struct {
		name     string
		resolved *time.Time
		want     int64
	}{
		{"unresolved", nil, 0},
		{"exact", at(45 * time.Minute), 45},
		{"truncates", at(45*time.Minute + 59*time.Second), 45},
		{"under a minute", at(30 * time.Second), 0},
		{"clock skew", at(-time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &EmergencyAlert{CreatedAt: created, ResolvedAt: tt.resolved}
			if got := a.DurationMinutes(); got != tt.want {
				t.Errorf("DurationMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPhaseReached(t *testing.T) {
	if !PhaseContacts.Reached(PhaseStaff) {
		t.Error("CONTACTS should have reached STAFF")
	}
	if PhasePending.Reached(PhaseStaff) {
		t.Error("PENDING should not have reached STAFF")
	}
	if !PhaseComplete.Reached(PhaseComplete) {
		t.Error("a phase reaches itself")
	}
}

func TestRecipientKeyMatchesOutcomeKey(t *testing.T) {
	r := Recipient{ContactType: ContactEmail, Value: "a@b.c", Relationship: RelationshipPatient, Audience: AudienceContact}
	o := &DeliveryOutcome{Audience: AudienceContact, Channel: ContactEmail.Channel(), Destination: "a@b.c", Relationship: RelationshipPatient}
	if r.key() != o.key() {
		t.Errorf("recipient key %q != outcome key %q", r.key(), o.key())
	}
}

func TestRecipientKey_StaffSharingPhone(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ra := Recipient{ContactType: ContactPhone, Value: "+15553000", Relationship: string(RoleNurse), Audience: AudienceStaff, StaffID: &a}
	rb := Recipient{ContactType: ContactPhone, Value: "+15553000", Relationship: string(RoleNurse), Audience: AudienceStaff, StaffID: &b}
	if ra.key() == rb.key() {
		t.Fatalf("staff sharing a phone collapsed to one key %q", ra.key())
	}

	o := &DeliveryOutcome{Audience: AudienceStaff, Channel: ContactPhone.Channel(), Destination: "+15553000", Relationship: string(RoleNurse), StaffID: &a}
	if ra.key() != o.key() {
		t.Errorf("recipient key %q != outcome key %q", ra.key(), o.key())
	}
}
