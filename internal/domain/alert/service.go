// Package alert implements emergency alerts: recording them, notifying staff
// and the patient's contacts, and resolving them.
package alert

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/realtime"
)

// Audit vocabulary.
const (
	ActionTriggered = "EMERGENCY_ALERT_TRIGGERED"
	ActionResolved  = "EMERGENCY_ALERT_RESOLVED"
	EntityType      = "EmergencyAlert"
)

// ResolvePolicy decides what resolving an already resolved alert does. The
// default is ResolveOverwrite.
type ResolvePolicy string

const (
	// ResolveStrict rejects RESOLVED -> RESOLVED with ErrInvalidTransition.
	ResolveStrict ResolvePolicy = "strict"
	// ResolveOverwrite re-resolves and overwrites the resolution fields.
	ResolveOverwrite ResolvePolicy = "overwrite"
)

// Publisher pushes alert events to realtime sessions in a clinic.
type Publisher interface {
	NotifyClinic(ctx context.Context, clinicID, event string, payload any) error
}

type Service struct {
	alerts     AlertRepository
	deliveries DeliveryRepository
	resolver   *Resolver
	composer   *Composer
	dispatcher *Dispatcher
	ledger     audit.Ledger
	publisher  Publisher
	metrics    *Metrics
	logger     zerolog.Logger
	policy     ResolvePolicy
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConcurrency caps in-flight sends per phase. Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.dispatcher.concurrency = max(n, 1) }
}

// WithSendTimeout bounds each adapter call. Zero disables the bound.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) { s.dispatcher.sendTimeout = d }
}

func WithResolvePolicy(p ResolvePolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithTemplates(t *notification.TemplateEngine) Option {
	return func(s *Service) { s.composer = NewComposer(t) }
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.dispatcher.now = now
	}
}

func NewService(alerts AlertRepository, deliveries DeliveryRepository, directory DirectoryRepository,
	ledger audit.Ledger, sms notification.SMSSender, email notification.EmailSender, opts ...Option) *Service {
	s := &Service{
		alerts:     alerts,
		deliveries: deliveries,
		resolver:   NewResolver(directory),
		composer:   NewComposer(nil),
		dispatcher: NewDispatcher(sms, email, deliveries, zerolog.Nop()),
		ledger:     ledger,
		logger:     zerolog.Nop(),
		policy:     ResolveOverwrite,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With().Str("component", "emergency-alert").Logger()
	s.dispatcher.logger = s.logger
	s.dispatcher.metrics = s.metrics
	return s
}

// -- Trigger --

// Trigger records a new ACTIVE alert and notifies staff, then the patient's
// contacts. The alert is persisted before any send, so it exists even when
// every send fails. Nothing is written when the patient or clinic is unknown.
func (s *Service) Trigger(ctx context.Context, patientID uuid.UUID, emergencyType EmergencyType, details, triggeredBy string) (*EmergencyAlert, error) {
	if !emergencyType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmergencyType, emergencyType)
	}
	if strings.TrimSpace(triggeredBy) == "" {
		return nil, fmt.Errorf("%w: triggered_by is required", ErrInvalidInput)
	}

	target, err := s.resolver.Resolve(ctx, patientID)
	if err != nil {
		return nil, err
	}

	a := &EmergencyAlert{
		ID:                uuid.New(),
		PatientID:         target.Patient.ID,
		ClinicID:          target.Clinic.ID,
		EmergencyType:     emergencyType,
		Details:           details,
		TriggeredBy:       triggeredBy,
		Status:            StatusActive,
		NotificationPhase: PhasePending,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create emergency alert: %w", err)
	}
	s.metrics.IncTriggered(emergencyType)
	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("clinic_id", a.ClinicID.String()).
		Str("emergency_type", string(emergencyType)).
		Int("staff_recipients", len(target.Staff)).
		Int("contact_recipients", len(target.Contacts)).
		Msg("emergency alert triggered")

	if err := s.fanOut(ctx, a, target, nil); err != nil {
		return a, err
	}

	s.publish(ctx, a, realtime.EventEmergencyAlert)
	return a, nil
}

// fanOut runs the staff phase then the contact phase, skipping recipients that
// already have an outcome in prior, writes the trigger audit entry and marks
// the alert COMPLETE.
func (s *Service) fanOut(ctx context.Context, a *EmergencyAlert, target *Target, prior []*DeliveryOutcome) error {
	// Sends must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	start := s.now()

	done := make(map[string]bool, len(prior))
	var staffOutcomes, contactOutcomes []DeliveryOutcome
	for _, o := range prior {
		done[o.key()] = true
		switch o.Audience {
		case AudienceStaff:
			staffOutcomes = append(staffOutcomes, *o)
		case AudienceContact:
			contactOutcomes = append(contactOutcomes, *o)
		}
	}

	compose := func(r Recipient) (string, string, error) {
		return s.composer.Trigger(a, target, r)
	}

	if !a.NotificationPhase.Reached(PhaseStaff) {
		staffOutcomes = append(staffOutcomes, s.dispatcher.Dispatch(ctx, a.ID, pending(target.Staff, done), compose)...)
		s.advance(ctx, a, PhaseStaff)
	}
	if !a.NotificationPhase.Reached(PhaseContacts) {
		contactOutcomes = append(contactOutcomes, s.dispatcher.Dispatch(ctx, a.ID, pending(target.Contacts, done), compose)...)
		s.advance(ctx, a, PhaseContacts)
	}
	s.metrics.ObserveFanOut(s.now().Sub(start))

	metadata := map[string]any{
		"patientId":         a.PatientID.String(),
		"emergencyType":     string(a.EmergencyType),
		"triggeredBy":       a.TriggeredBy,
		"notifiedStaff":     len(staffOutcomes),
		"notifiedContacts":  len(contactOutcomes),
		"deliveredStaff":    countSuccess(staffOutcomes),
		"deliveredContacts": countSuccess(contactOutcomes),
	}
	if prior != nil {
		metadata["resumed"] = true
	}
	if err := s.ledger.Log(ctx, ActionTriggered, EntityType, a.ID.String(), metadata, a.TriggeredBy); err != nil {
		s.metrics.IncAuditFailure()
		s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("failed to write trigger audit entry")
		return fmt.Errorf("audit trigger of alert %s: %w", a.ID, err)
	}

	s.advance(ctx, a, PhaseComplete)
	return nil
}

func pending(recipients []Recipient, done map[string]bool) []Recipient {
	if len(done) == 0 {
		return recipients
	}
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if !done[r.key()] {
			out = append(out, r)
		}
	}
	return out
}

// advance persists the next notification phase. A failure leaves the alert
// looking incomplete, which Resume handles, so it is logged and not returned.
func (s *Service) advance(ctx context.Context, a *EmergencyAlert, phase Phase) {
	if err := s.alerts.SetPhase(ctx, a.ID, phase); err != nil {
		s.logger.Error().Err(err).
			Str("alert_id", a.ID.String()).
			Str("phase", string(phase)).
			Msg("failed to record notification phase")
		return
	}
	a.NotificationPhase = phase
}

// -- Resolve --

// Resolve moves an alert to RESOLVED, texts the patient when they have a
// phone, and audits the resolution with its duration.
func (s *Service) Resolve(ctx context.Context, alertID uuid.UUID, resolvedBy, resolutionNotes string) (*EmergencyAlert, error) {
	if strings.TrimSpace(resolvedBy) == "" {
		return nil, fmt.Errorf("%w: resolved_by is required", ErrInvalidInput)
	}

	a, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	from := []Status{StatusActive}
	if s.policy == ResolveOverwrite {
		from = append(from, StatusResolved)
	}
	if !slices.Contains(from, a.Status) {
		return nil, fmt.Errorf("%w: alert %s is %s", ErrInvalidTransition, a.ID, a.Status)
	}
	if !CanTransition(a.Status, StatusResolved) {
		s.logger.Warn().Str("alert_id", a.ID.String()).Msg("overwriting resolution of already resolved alert")
	}

	now := s.now().UTC()
	a.Status = StatusResolved
	a.ResolvedAt = &now
	a.ResolutionNotes = &resolutionNotes
	a.ResolvedBy = &resolvedBy
	// Re-checked against the stored status under a row lock.
	if err := s.alerts.Resolve(ctx, a, from); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAlertNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve emergency alert %s: %w", a.ID, err)
	}
	s.metrics.IncResolved()

	s.notifyResolved(ctx, a)

	metadata := map[string]any{
		"resolvedBy":      resolvedBy,
		"resolutionNotes": resolutionNotes,
		"durationMinutes": a.DurationMinutes(),
	}
	if err := s.ledger.Log(ctx, ActionResolved, EntityType, a.ID.String(), metadata, resolvedBy); err != nil {
		s.metrics.IncAuditFailure()
		s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("failed to write resolve audit entry")
		return a, fmt.Errorf("audit resolution of alert %s: %w", a.ID, err)
	}

	s.publish(ctx, a, realtime.EventEmergencyAlertResolved)
	return a, nil
}

// notifyResolved sends exactly one SMS to the patient's phone. There is no
// email fallback.
func (s *Service) notifyResolved(ctx context.Context, a *EmergencyAlert) {
	patient, clinic, err := s.resolver.Lookup(ctx, a.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("skipping resolution notice")
		return
	}
	if patient.Phone == "" {
		return
	}

	r := Recipient{ContactType: ContactPhone, Value: patient.Phone, Relationship: RelationshipPatient, Audience: AudienceContact}
	s.dispatcher.Dispatch(context.WithoutCancel(ctx), a.ID, []Recipient{r}, func(Recipient) (string, string, error) {
		body, err := s.composer.Resolved(a, patient, clinic)
		return "", body, err
	})
}

// -- Resume --

// Resume finishes an interrupted fan-out for an ACTIVE alert. Recipients that
// already have a delivery outcome are not contacted again.
func (s *Service) Resume(ctx context.Context, alertID uuid.UUID) (*EmergencyAlert, error) {
	a, err := s.get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive || a.NotificationPhase == PhaseComplete {
		return nil, fmt.Errorf("%w: alert %s is %s/%s", ErrNotResumable, a.ID, a.Status, a.NotificationPhase)
	}

	target, err := s.resolver.Resolve(ctx, a.PatientID)
	if err != nil {
		return nil, err
	}
	prior, err := s.deliveries.ListByAlert(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("load delivery outcomes for alert %s: %w", a.ID, err)
	}
	if prior == nil {
		prior = []*DeliveryOutcome{}
	}

	s.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("phase", string(a.NotificationPhase)).
		Int("prior_outcomes", len(prior)).
		Msg("resuming emergency alert fan-out")

	if err := s.fanOut(ctx, a, target, prior); err != nil {
		return a, err
	}
	s.publish(ctx, a, realtime.EventEmergencyAlert)
	return a, nil
}

// ResumeIncomplete resumes every ACTIVE alert older than olderThan whose
// fan-out never completed. It returns how many were resumed.
func (s *Service) ResumeIncomplete(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.alerts.ListIncomplete(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("list incomplete alerts: %w", err)
	}

	var errs []error
	resumed := 0
	for _, a := range stale {
		if _, err := s.Resume(ctx, a.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		resumed++
	}
	return resumed, errors.Join(errs...)
}

// -- Queries --

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	return s.get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*EmergencyAlert, int, error) {
	return s.alerts.List(ctx, filter, limit, offset)
}

func (s *Service) Deliveries(ctx context.Context, alertID uuid.UUID) ([]*DeliveryOutcome, error) {
	if _, err := s.get(ctx, alertID); err != nil {
		return nil, err
	}
	return s.deliveries.ListByAlert(ctx, alertID)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	a, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			return nil, fmt.Errorf("alert %s: %w", id, ErrAlertNotFound)
		}
		return nil, fmt.Errorf("load alert %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) publish(ctx context.Context, a *EmergencyAlert, event string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.NotifyClinic(ctx, a.ClinicID.String(), event, a); err != nil {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Str("event", event).Msg("realtime publish failed")
	}
}
