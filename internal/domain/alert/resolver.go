package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Target is everything a trigger needs to know about who to notify.
type Target struct {
	Patient  *Patient
	Clinic   *Clinic
	Staff    []Recipient
	Contacts []Recipient
}

// Resolver derives notification targets from the directory. Recipients are
// rebuilt on every call; duplicates across rules are kept.
type Resolver struct {
	directory DirectoryRepository
}

func NewResolver(directory DirectoryRepository) *Resolver {
	return &Resolver{directory: directory}
}

// Lookup loads a patient and their clinic.
func (r *Resolver) Lookup(ctx context.Context, patientID uuid.UUID) (*Patient, *Clinic, error) {
	patient, err := r.directory.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, nil, fmt.Errorf("patient %s: %w", patientID, ErrPatientNotFound)
		}
		return nil, nil, fmt.Errorf("load patient %s: %w", patientID, err)
	}
	clinic, err := r.directory.GetClinic(ctx, patient.ClinicID)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, nil, fmt.Errorf("clinic %s: %w", patient.ClinicID, ErrClinicNotFound)
		}
		return nil, nil, fmt.Errorf("load clinic %s: %w", patient.ClinicID, err)
	}
	return patient, clinic, nil
}

// Resolve loads the patient, clinic and alerted staff and derives both
// recipient lists.
func (r *Resolver) Resolve(ctx context.Context, patientID uuid.UUID) (*Target, error) {
	patient, clinic, err := r.Lookup(ctx, patientID)
	if err != nil {
		return nil, err
	}
	staff, err := r.directory.ListStaff(ctx, clinic.ID, AlertedRoles)
	if err != nil {
		return nil, fmt.Errorf("load staff for clinic %s: %w", clinic.ID, err)
	}
	return &Target{
		Patient:  patient,
		Clinic:   clinic,
		Staff:    StaffRecipients(staff),
		Contacts: ContactRecipients(patient),
	}, nil
}

// StaffRecipients yields one PHONE entry per staff phone and one EMAIL entry
// per staff email. Staff outside AlertedRoles are skipped.
func StaffRecipients(staff []*StaffMember) []Recipient {
	var out []Recipient
	for _, s := range staff {
		if !alertedRole(s.Role) {
			continue
		}
		id := s.ID
		if s.Phone != "" {
			out = append(out, Recipient{ContactType: ContactPhone, Value: s.Phone, Relationship: string(s.Role), Audience: AudienceStaff, StaffID: &id})
		}
		if s.Email != "" {
			out = append(out, Recipient{ContactType: ContactEmail, Value: s.Email, Relationship: string(s.Role), Audience: AudienceStaff, StaffID: &id})
		}
	}
	return out
}

// ContactRecipients applies three independent rules: emergency-contact phone,
// patient phone and patient email.
func ContactRecipients(p *Patient) []Recipient {
	var out []Recipient
	if p.EmergencyContactPhone != "" {
		out = append(out, Recipient{ContactType: ContactPhone, Value: p.EmergencyContactPhone, Relationship: RelationshipEmergencyContact, Audience: AudienceContact})
	}
	if p.Phone != "" {
		out = append(out, Recipient{ContactType: ContactPhone, Value: p.Phone, Relationship: RelationshipPatient, Audience: AudienceContact})
	}
	if p.Email != "" {
		out = append(out, Recipient{ContactType: ContactEmail, Value: p.Email, Relationship: RelationshipPatient, Audience: AudienceContact})
	}
	return out
}

func alertedRole(role StaffRole) bool {
	for _, r := range AlertedRoles {
		if r == role {
			return true
		}
	}
	return false
}
