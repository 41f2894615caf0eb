package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGateway_SendSMS_SignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "", "s3cret")
	if err := g.SendSMS(context.Background(), "+15550100", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var req smsRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if req.To != "+15550100" || req.Body != "hello" {
		t.Errorf("request = %+v", req)
	}
	if !VerifySignature(gotBody, "s3cret", gotSig) {
		t.Errorf("signature %q does not verify", gotSig)
	}
}

func TestGateway_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGateway("", srv.URL, "")
	err := g.SendEmail(context.Background(), "a@b.c", "subj", "body")
	if err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestGateway_UnconfiguredChannel(t *testing.T) {
	g := NewGateway("", "", "")
	if err := g.SendSMS(context.Background(), "+1", "x"); err == nil {
		t.Error("expected error for missing sms url")
	}
	if err := g.SendEmail(context.Background(), "a@b.c", "s", "x"); err == nil {
		t.Error("expected error for missing email url")
	}
}

func TestVerifySignature_Mismatch(t *testing.T) {
	sig := SignPayload([]byte(`{"a":1}`), "k")
	if VerifySignature([]byte(`{"a":2}`), "k", sig) {
		t.Error("signature should not verify for a different payload")
	}
	if !VerifySignature([]byte(`{"a":1}`), "k", "sha256="+sig) {
		t.Error("prefixed signature should verify")
	}
}
