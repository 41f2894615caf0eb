package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Event names emitted by this service.
const (
	EventEmergencyAlert         = "emergency-alert"
	EventEmergencyAlertResolved = "emergency-alert-resolved"
)

// AppointmentEvent returns the event name for updates to an appointment.
func AppointmentEvent(appointmentID string) string {
	return "appointment-" + appointmentID
}

// Broadcaster is the entry point for session membership and emits. Every emit
// carries an explicit Scope.
type Broadcaster struct {
	hub     *Hub
	backend Backend
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewBroadcaster creates a Broadcaster. When backend is nil the hub is used
// directly.
func NewBroadcaster(hub *Hub, backend Backend, logger zerolog.Logger, metrics *Metrics) *Broadcaster {
	if backend == nil {
		backend = NewLocalBackend(hub)
	}
	return &Broadcaster{
		hub:     hub,
		backend: backend,
		logger:  logger.With().Str("component", "realtime").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Hub returns the local session hub.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// Connect registers a new session.
func (b *Broadcaster) Connect(s *Session) { b.hub.Register(s) }

// JoinClinic adds the session to the clinic's room.
func (b *Broadcaster) JoinClinic(s *Session, clinicID string) {
	b.hub.Join(s, ClinicRoom(clinicID))
	b.logger.Debug().Str("session", s.ID).Str("clinic_id", clinicID).Msg("joined clinic room")
}

// JoinDoctor adds the session to the doctor's room.
func (b *Broadcaster) JoinDoctor(s *Session, doctorID string) {
	b.hub.Join(s, DoctorRoom(doctorID))
	b.logger.Debug().Str("session", s.ID).Str("doctor_id", doctorID).Msg("joined doctor room")
}

func (b *Broadcaster) LeaveClinic(s *Session, clinicID string) {
	b.hub.Leave(s, ClinicRoom(clinicID))
}

func (b *Broadcaster) LeaveDoctor(s *Session, doctorID string) {
	b.hub.Leave(s, DoctorRoom(doctorID))
}

// Disconnect drops the session from every room.
func (b *Broadcaster) Disconnect(s *Session) {
	b.hub.Disconnect(s)
	b.logger.Debug().Str("session", s.ID).Msg("session disconnected")
}

// NotifyClinic emits event to members of the clinic's room only.
func (b *Broadcaster) NotifyClinic(ctx context.Context, clinicID, event string, payload any) error {
	return b.Emit(ctx, RoomScope(ClinicRoom(clinicID)), event, payload)
}

// NotifyDoctor emits event to members of the doctor's room only.
func (b *Broadcaster) NotifyDoctor(ctx context.Context, doctorID, event string, payload any) error {
	return b.Emit(ctx, RoomScope(DoctorRoom(doctorID)), event, payload)
}

// EmitAppointmentUpdate emits appointment-<id> to every connected session,
// regardless of room.
func (b *Broadcaster) EmitAppointmentUpdate(ctx context.Context, appointmentID string, payload any) error {
	return b.Emit(ctx, AllSessions(), AppointmentEvent(appointmentID), payload)
}

// EmitAppointmentUpdateToClinic emits appointment-<id> to the clinic's room only.
func (b *Broadcaster) EmitAppointmentUpdateToClinic(ctx context.Context, clinicID, appointmentID string, payload any) error {
	return b.Emit(ctx, RoomScope(ClinicRoom(clinicID)), AppointmentEvent(appointmentID), payload)
}

// Emit encodes a frame and hands it to the backend. Delivery is
// fire-and-forget: the returned error covers encoding and publishing only.
func (b *Broadcaster) Emit(ctx context.Context, scope Scope, event string, payload any) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{
		Event:     event,
		Room:      scope.Room,
		Payload:   raw,
		Timestamp: b.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	if err := b.backend.Publish(ctx, Envelope{Scope: scope, Frame: frame}); err != nil {
		b.metrics.IncPublishFailure()
		return fmt.Errorf("publish %s: %w", event, err)
	}
	b.metrics.IncEmitted(scope.Kind)
	return nil
}
