package alert

import (
	"fmt"
	"time"

	"github.com/clinic/clinic/internal/platform/notification"
)

// Composer renders alert messages from the notification templates.
type Composer struct {
	templates *notification.TemplateEngine
}

func NewComposer(templates *notification.TemplateEngine) *Composer {
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Composer{templates: templates}
}

func templateFor(r Recipient) string {
	switch {
	case r.Audience == AudienceStaff && r.ContactType == ContactEmail:
		return notification.TemplateAlertStaffEmail
	case r.Audience == AudienceStaff:
		return notification.TemplateAlertStaffSMS
	case r.ContactType == ContactEmail:
		return notification.TemplateAlertContactEmail
	default:
		return notification.TemplateAlertContactSMS
	}
}

func templateData(a *EmergencyAlert, patient *Patient, clinic *Clinic) map[string]string {
	data := map[string]string{
		"emergency_type": string(a.EmergencyType),
		"details":        a.Details,
		"timestamp":      a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if patient != nil {
		data["patient_name"] = patient.FullName()
	}
	if clinic != nil {
		data["clinic_name"] = clinic.Name
		data["clinic_phone"] = clinic.Phone
	}
	if a.ResolutionNotes != nil {
		data["resolution_notes"] = *a.ResolutionNotes
	}
	return data
}

// Trigger renders the alert message for r.
func (c *Composer) Trigger(a *EmergencyAlert, t *Target, r Recipient) (subject, body string, err error) {
	subject, body, err = c.templates.Render(templateFor(r), templateData(a, t.Patient, t.Clinic))
	if err != nil {
		return "", "", fmt.Errorf("render alert message: %w", err)
	}
	return subject, body, nil
}

// Resolved renders the SMS sent to the patient when an alert is resolved.
func (c *Composer) Resolved(a *EmergencyAlert, patient *Patient, clinic *Clinic) (string, error) {
	_, body, err := c.templates.Render(notification.TemplateAlertResolvedSMS, templateData(a, patient, clinic))
	if err != nil {
		return "", fmt.Errorf("render resolution message: %w", err)
	}
	return body, nil
}
