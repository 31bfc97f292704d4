package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when credentials are missing")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error when from number is missing")
	}
}

func TestWhatsAppAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"919876543210", "whatsapp:+919876543210"},
		{"+919876543210", "whatsapp:+919876543210"},
		{"whatsapp:+919876543210", "whatsapp:+919876543210"},
	}
	for _, tc := range cases {
		if got := whatsAppAddress(tc.in); got != tc.want {
			t.Errorf("whatsAppAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMessage(context.Background(), "919876543210", "Got it. ₹500 spent on 2 January."); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "919876543210" {
		t.Errorf("recorded recipient = %q", mock.SentMessages[0].To)
	}
}
