package alert

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/notification"
)

// EmergencyType classifies an alert.
type EmergencyType string

const (
	TypeMedical  EmergencyType = "MEDICAL"
	TypeSecurity EmergencyType = "SECURITY"
	TypeSystem   EmergencyType = "SYSTEM"
)

func (t EmergencyType) Valid() bool {
	switch t {
	case TypeMedical, TypeSecurity, TypeSystem:
		return true
	}
	return false
}

// ParseEmergencyType accepts any letter case.
func ParseEmergencyType(s string) (EmergencyType, error) {
	t := EmergencyType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidEmergencyType
	}
	return t, nil
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusResolved Status = "RESOLVED"
)

// transitions lists the legal next states for each status.
var transitions = map[Status][]Status{
	StatusActive: {StatusResolved},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Phase tracks how far trigger fan-out has progressed. An ACTIVE alert whose
// phase is not COMPLETE had its fan-out interrupted.
type Phase string

const (
	PhasePending  Phase = "PENDING"
	PhaseStaff    Phase = "STAFF"
	PhaseContacts Phase = "CONTACTS"
	PhaseComplete Phase = "COMPLETE"
)

var phaseRank = map[Phase]int{
	PhasePending:  0,
	PhaseStaff:    1,
	PhaseContacts: 2,
	PhaseComplete: 3,
}

// Reached reports whether p is at or beyond q.
func (p Phase) Reached(q Phase) bool {
	return phaseRank[p] >= phaseRank[q]
}

// EmergencyAlert maps to the emergency_alert table.
type EmergencyAlert struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	PatientID         uuid.UUID     `db:"patient_id" json:"patient_id"`
	ClinicID          uuid.UUID     `db:"clinic_id" json:"clinic_id"`
	EmergencyType     EmergencyType `db:"emergency_type" json:"emergency_type"`
	Details           string        `db:"details" json:"details"`
	TriggeredBy       string        `db:"triggered_by" json:"triggered_by"`
	Status            Status        `db:"status" json:"status"`
	NotificationPhase Phase         `db:"notification_phase" json:"notification_phase"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt        *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes   *string       `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolvedBy        *string       `db:"resolved_by" json:"resolved_by,omitempty"`
}

// DurationMinutes is the whole number of minutes between creation and
// resolution, or 0 for an unresolved alert.
func (a *EmergencyAlert) DurationMinutes() int64 {
	if a.ResolvedAt == nil {
		return 0
	}
	d := a.ResolvedAt.Sub(a.CreatedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Minute)
}

// ContactType is the kind of address a recipient is reached at.
type ContactType string

const (
	ContactPhone ContactType = "PHONE"
	ContactEmail ContactType = "EMAIL"
)

// Channel maps a contact type to the adapter that serves it.
func (c ContactType) Channel() notification.Channel {
	if c == ContactEmail {
		return notification.ChannelEmail
	}
	return notification.ChannelSMS
}

// Audience selects the message copy a recipient receives.
type Audience string

const (
	AudienceStaff   Audience = "STAFF"
	AudienceContact Audience = "CONTACT"
)

// Relationship labels for non-staff recipients.
const (
	RelationshipPatient          = "Patient"
	RelationshipEmergencyContact = "Emergency Contact"
)

// Recipient is a derived notification target. It is never persisted.
type Recipient struct {
	ContactType  ContactType `json:"contact_type"`
	Value        string      `json:"value"`
	Relationship string      `json:"relationship"`
	Audience     Audience    `json:"audience"`
	StaffID      *uuid.UUID  `json:"staff_id,omitempty"`
}

// key identifies a recipient for resume bookkeeping. Staff recipients carry
// their staff ID so colleagues sharing a phone stay distinct.
func (r Recipient) key() string {
	return deliveryKey(r.Audience, r.ContactType.Channel(), r.Value, r.Relationship, r.StaffID)
}

func deliveryKey(audience Audience, channel notification.Channel, dest, relationship string, staffID *uuid.UUID) string {
	k := string(audience) + "|" + string(channel) + "|" + dest + "|" + relationship
	if staffID != nil {
		k += "|" + staffID.String()
	}
	return k
}

// DeliveryOutcome maps to the alert_delivery table. One row per attempted send.
type DeliveryOutcome struct {
	ID           uuid.UUID            `db:"id" json:"id"`
	AlertID      uuid.UUID            `db:"alert_id" json:"alert_id"`
	Audience     Audience             `db:"audience" json:"audience"`
	Channel      notification.Channel `db:"channel" json:"channel"`
	Destination  string               `db:"destination" json:"destination"`
	Relationship string               `db:"relationship" json:"relationship"`
	StaffID      *uuid.UUID           `db:"staff_id" json:"staff_id,omitempty"`
	Success      bool                 `db:"success" json:"success"`
	Error        string               `db:"error" json:"error,omitempty"`
	AttemptedAt  time.Time            `db:"attempted_at" json:"attempted_at"`
}

func (o *DeliveryOutcome) key() string {
	return deliveryKey(o.Audience, o.Channel, o.Destination, o.Relationship, o.StaffID)
}

// StaffRole is a clinic staff role from the directory.
type StaffRole string

const (
	RoleAdmin        StaffRole = "ADMIN"
	RoleDoctor       StaffRole = "DOCTOR"
	RoleNurse        StaffRole = "NURSE"
	RoleReceptionist StaffRole = "RECEPTIONIST"
)

// AlertedRoles are the staff roles notified when an alert fires.
var AlertedRoles = []StaffRole{RoleAdmin, RoleDoctor, RoleNurse}

// Patient is the directory view of a patient. Empty strings mean absent.
type Patient struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	ClinicID              uuid.UUID `db:"clinic_id" json:"clinic_id"`
	FirstName             string    `db:"first_name" json:"first_name"`
	LastName              string    `db:"last_name" json:"last_name"`
	Phone                 string    `db:"phone" json:"phone,omitempty"`
	Email                 string    `db:"email" json:"email,omitempty"`
	EmergencyContactName  string    `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string    `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Clinic is the directory view of a clinic.
type Clinic struct {
	ID      uuid.UUID `db:"id" json:"id"`
	Name    string    `db:"name" json:"name"`
	Phone   string    `db:"phone" json:"phone,omitempty"`
	Address string    `db:"address" json:"address,omitempty"`
}

// StaffMember is the directory view of a clinic employee.
type StaffMember struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ClinicID uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Name     string    `db:"name" json:"name"`
	Role     StaffRole `db:"role" json:"role"`
	Phone    string    `db:"phone" json:"phone,omitempty"`
	Email    string    `db:"email" json:"email,omitempty"`
}

// ListFilter narrows alert listings. Zero values match everything.
type ListFilter struct {
	ClinicID uuid.UUID
	Status   Status
}
