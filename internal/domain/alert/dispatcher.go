package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/platform/notification"
)

// composeFunc renders the message for one recipient. subject is ignored for SMS.
type composeFunc func(r Recipient) (subject, body string, err error)

var errNoAdapter = errors.New("no channel adapter configured")

// Dispatcher sends one phase of messages through the channel adapters with a
// bounded number of sends in flight. A failed send never stops the others;
// every attempt yields a DeliveryOutcome.
type Dispatcher struct {
	sms         notification.SMSSender
	email       notification.EmailSender
	deliveries  DeliveryRepository
	logger      zerolog.Logger
	metrics     *Metrics
	concurrency int
	sendTimeout time.Duration
	now         func() time.Time
}

func NewDispatcher(sms notification.SMSSender, email notification.EmailSender, deliveries DeliveryRepository, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sms:         sms,
		email:       email,
		deliveries:  deliveries,
		logger:      logger,
		concurrency: 1,
		now:         time.Now,
	}
}

// Dispatch sends to every recipient and returns outcomes in recipient order.
// With concurrency 1 sends run strictly one after another.
func (d *Dispatcher) Dispatch(ctx context.Context, alertID uuid.UUID, recipients []Recipient, compose composeFunc) []DeliveryOutcome {
	outcomes := make([]DeliveryOutcome, len(recipients))

	var g errgroup.Group
	g.SetLimit(max(d.concurrency, 1))
	for i, r := range recipients {
		g.Go(func() error {
			outcomes[i] = d.send(ctx, alertID, r, compose)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) send(ctx context.Context, alertID uuid.UUID, r Recipient, compose composeFunc) DeliveryOutcome {
	outcome := DeliveryOutcome{
		ID:           uuid.New(),
		AlertID:      alertID,
		Audience:     r.Audience,
		Channel:      r.ContactType.Channel(),
		Destination:  r.Value,
		Relationship: r.Relationship,
		StaffID:      r.StaffID,
		AttemptedAt:  d.now().UTC(),
	}

	err := d.deliver(ctx, r, compose)
	outcome.Success = err == nil
	if err != nil {
		outcome.Error = err.Error()
		d.logger.Warn().Err(err).
			Str("alert_id", alertID.String()).
			Str("channel", string(outcome.Channel)).
			Str("audience", string(r.Audience)).
			Str("relationship", r.Relationship).
			Msg("notification delivery failed")
	}
	d.metrics.IncNotification(outcome.Channel, r.Audience, outcome.Success)

	if d.deliveries != nil {
		if err := d.deliveries.Record(ctx, &outcome); err != nil {
			d.logger.Error().Err(err).
				Str("alert_id", alertID.String()).
				Str("channel", string(outcome.Channel)).
				Msg("failed to record delivery outcome")
		}
	}
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, r Recipient, compose composeFunc) error {
	subject, body, err := compose(r)
	if err != nil {
		return err
	}

	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	switch r.ContactType {
	case ContactEmail:
		if d.email == nil {
			return errNoAdapter
		}
		return d.email.SendEmail(ctx, r.Value, subject, body)
	default:
		if d.sms == nil {
			return errNoAdapter
		}
		return d.sms.SendSMS(ctx, r.Value, body)
	}
}

// countSuccess returns how many outcomes succeeded.
func countSuccess(outcomes []DeliveryOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
