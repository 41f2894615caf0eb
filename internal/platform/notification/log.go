package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It is
// used in development when no gateway is configured.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("channel", string(ChannelSMS)).Str("to", to).Str("body", body).Msg("sms (log only)")
	return nil
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("channel", string(ChannelEmail)).Str("to", to).Str("subject", subject).Int("body_len", len(body)).Msg("email (log only)")
	return nil
}
