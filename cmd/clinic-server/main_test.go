package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/notification"
)

func TestNewSenders_LogOnlyWithoutGateway(t *testing.T) {
	sms, email := newSenders(&config.Config{}, zerolog.Nop())
	if _, ok := sms.(*notification.LogSender); !ok {
		t.Errorf("sms sender = %T, want *notification.LogSender", sms)
	}
	if _, ok := email.(*notification.LogSender); !ok {
		t.Errorf("email sender = %T, want *notification.LogSender", email)
	}
}

func TestNewSenders_GatewayWhenConfigured(t *testing.T) {
	cfg := &config.Config{SMSGatewayURL: "http://sms.local/send", GatewaySecret: "s3cret"}
	sms, email := newSenders(cfg, zerolog.Nop())
	if _, ok := sms.(*notification.Gateway); !ok {
		t.Errorf("sms sender = %T, want *notification.Gateway", sms)
	}
	if _, ok := email.(*notification.Gateway); !ok {
		t.Errorf("email sender = %T, want *notification.Gateway", email)
	}
}

func TestSchemaFlag(t *testing.T) {
	cfg := &config.Config{DBSchema: "clinic"}

	cmd := migrateCmd()
	up, _, err := cmd.Find([]string{"up"})
	if err != nil {
		t.Fatalf("find up: %v", err)
	}
	if got := schemaFlag(up, cfg); got != "clinic" {
		t.Errorf("schema = %q, want default from config", got)
	}

	if err := up.Flags().Set("schema", "clinic_test"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if got := schemaFlag(up, cfg); got != "clinic_test" {
		t.Errorf("schema = %q, want flag value", got)
	}
}

func TestAlertsResumeFlags(t *testing.T) {
	cmd := alertsCmd()
	resume, _, err := cmd.Find([]string{"resume"})
	if err != nil {
		t.Fatalf("find resume: %v", err)
	}
	d, err := resume.Flags().GetDuration("older-than")
	if err != nil {
		t.Fatalf("older-than flag: %v", err)
	}
	if d.Minutes() != 5 {
		t.Errorf("older-than default = %s, want 5m", d)
	}
}

func TestNewRealtime_Local(t *testing.T) {
	rt, err := newRealtime(context.Background(), &config.Config{RealtimeBackend: "local"}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close()
	if rt.broadcaster == nil {
		t.Fatal("broadcaster should be set")
	}
	if rt.redis != nil || rt.subscriber != nil {
		t.Error("local backend should not create a redis client")
	}
}
