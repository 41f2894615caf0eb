// Package notification holds the channel adapters used to reach people
// outside the system (SMS and email gateways) and the templates rendered for
// them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Channel is the delivery medium of a notification.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ---------------------------------------------------------------------------
// Channel adapters
// ---------------------------------------------------------------------------

// EmailSender delivers an email. A non-nil error means the message was not
// accepted by the gateway.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a text message. A non-nil error means the message was not
// accepted by the gateway.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template IDs rendered by the emergency alert orchestrator.
const (
	TemplateAlertStaffSMS     = "emergency-alert-staff-sms"
	TemplateAlertStaffEmail   = "emergency-alert-staff-email"
	TemplateAlertContactSMS   = "emergency-alert-contact-sms"
	TemplateAlertContactEmail = "emergency-alert-contact-email"
	TemplateAlertResolvedSMS  = "emergency-alert-resolved-sms"
)

// Template is a reusable message with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAlertStaffSMS,
			Name:    "Emergency Alert (staff, SMS)",
			Body:    "EMERGENCY ALERT [{{emergency_type}}] at {{clinic_name}}: patient {{patient_name}}. {{details}}. Time: {{timestamp}}. Please respond immediately.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateAlertStaffEmail,
			Name:    "Emergency Alert (staff, email)",
			Subject: "EMERGENCY ALERT: {{emergency_type}} - {{patient_name}}",
			Body: "An emergency alert has been triggered at {{clinic_name}}.\n\n" +
				"Patient: {{patient_name}}\nType: {{emergency_type}}\nDetails: {{details}}\nTime: {{timestamp}}\n\n" +
				"Please respond immediately.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateAlertContactSMS,
			Name:    "Emergency Alert (contact, SMS)",
			Body:    "{{clinic_name}}: an emergency ({{emergency_type}}) involving {{patient_name}} was reported at {{timestamp}}. {{details}}. Please contact the clinic at {{clinic_phone}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateAlertContactEmail,
			Name:    "Emergency Alert (contact, email)",
			Subject: "Emergency notification regarding {{patient_name}}",
			Body: "{{clinic_name}} is contacting you about an emergency involving {{patient_name}}.\n\n" +
				"Type: {{emergency_type}}\nDetails: {{details}}\nTime: {{timestamp}}\n\n" +
				"Please contact the clinic at {{clinic_phone}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateAlertResolvedSMS,
			Name:    "Emergency Alert Resolved (SMS)",
			Body:    "{{clinic_name}}: the emergency alert for {{patient_name}} has been resolved. Notes: {{resolution_notes}}",
			Channel: ChannelSMS,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map in a single pass, so substituted values are never scanned
// for placeholders. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// ---------------------------------------------------------------------------
// Mock Senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
	At      time.Time
}

// MockEmailSender is a test double for EmailSender. Destinations listed in
// FailFor fail; ShouldFail fails every call.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailFor    map[string]bool
	FailError  string
	Delay      time.Duration
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := waitDelay(ctx, m.Delay); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body, At: time.Now()})
	if m.ShouldFail || m.FailFor[to] {
		return errors.New(failMessage(m.FailError))
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
	At   time.Time
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailFor    map[string]bool
	FailError  string
	Delay      time.Duration
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if err := waitDelay(ctx, m.Delay); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body, At: time.Now()})
	if m.ShouldFail || m.FailFor[to] {
		return errors.New(failMessage(m.FailError))
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func waitDelay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failMessage(msg string) string {
	if msg == "" {
		return "gateway rejected message"
	}
	return msg
}
