package realtime

import (
	"testing"
	"time"
)

func receive(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case msg := <-s.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("session %s: timed out waiting for frame", s.ID)
		return nil
	}
}

func expectNothing(t *testing.T, s *Session) {
	t.Helper()
	select {
	case msg := <-s.Send:
		t.Fatalf("session %s: unexpected frame %s", s.ID, msg)
	default:
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	s := NewSession("s1", 4)
	h.Register(s)
	h.Join(s, ClinicRoom("c1"))
	h.Join(s, ClinicRoom("c1"))

	if got := h.MemberCount(ClinicRoom("c1")); got != 1 {
		t.Errorf("members = %d, want 1", got)
	}
	if n := h.Deliver(RoomScope(ClinicRoom("c1")), []byte("x")); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
}

func TestHub_MultipleRooms(t *testing.T) {
	h := NewHub(nil)
	s := NewSession("s1", 4)
	h.Register(s)
	h.Join(s, ClinicRoom("c1"))
	h.Join(s, DoctorRoom("d1"))

	if got := len(h.Rooms(s)); got != 2 {
		t.Errorf("rooms = %d, want 2", got)
	}
	h.Leave(s, ClinicRoom("c1"))
	if h.MemberCount(ClinicRoom("c1")) != 0 {
		t.Error("expected clinic room to be empty after leave")
	}
	if h.MemberCount(DoctorRoom("d1")) != 1 {
		t.Error("doctor membership should survive leaving the clinic room")
	}
}

func TestHub_JoinUnregisteredIgnored(t *testing.T) {
	h := NewHub(nil)
	s := NewSession("ghost", 1)
	h.Join(s, ClinicRoom("c1"))
	if h.MemberCount(ClinicRoom("c1")) != 0 {
		t.Error("unregistered session should not join rooms")
	}
}

func TestHub_DisconnectLeavesAllRooms(t *testing.T) {
	h := NewHub(nil)
	s := NewSession("s1", 1)
	h.Register(s)
	h.Join(s, ClinicRoom("c1"))
	h.Join(s, DoctorRoom("d1"))

	h.Disconnect(s)

	if h.SessionCount() != 0 {
		t.Errorf("sessions = %d, want 0", h.SessionCount())
	}
	if h.MemberCount(ClinicRoom("c1")) != 0 || h.MemberCount(DoctorRoom("d1")) != 0 {
		t.Error("expected no room memberships after disconnect")
	}
	if _, ok := <-s.Send; ok {
		t.Error("expected Send to be closed")
	}
	// second disconnect is a no-op
	h.Disconnect(s)
}

func TestHub_EmptyRoomIsNoop(t *testing.T) {
	h := NewHub(nil)
	if n := h.Deliver(RoomScope(ClinicRoom("nobody")), []byte("x")); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestHub_FullBufferSkipped(t *testing.T) {
	h := NewHub(nil)
	slow := NewSession("slow", 1)
	fast := NewSession("fast", 4)
	h.Register(slow)
	h.Register(fast)

	h.Deliver(AllSessions(), []byte("1"))
	n := h.Deliver(AllSessions(), []byte("2"))

	if n != 1 {
		t.Errorf("delivered = %d, want 1 (slow session skipped)", n)
	}
	if len(fast.Send) != 2 {
		t.Errorf("fast session has %d frames, want 2", len(fast.Send))
	}
}

func TestScope_Validate(t *testing.T) {
	if err := RoomScope("").Validate(); err == nil {
		t.Error("expected error for empty room")
	}
	if err := (Scope{Kind: "bogus"}).Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := AllSessions().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
