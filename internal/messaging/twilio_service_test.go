package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BolKhata/BolKhata/internal/twiliowhatsapp"
)

func TestTwilioServiceSendMessage(t *testing.T) {
	client := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(client)
	defer svc.Stop()

	if err := svc.SendMessage(context.Background(), "+91 98765-43210", "Reminder: electricity bill (15 March)"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(client.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(client.SentMessages))
	}
	if client.SentMessages[0].To != "919876543210" {
		t.Errorf("canonicalized recipient = %q", client.SentMessages[0].To)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "919876543210" {
			t.Errorf("receipt recipient = %q", receipt.To)
		}
	case <-time.After(time.Second):
		t.Fatal("no receipt emitted")
	}
}

func TestTwilioServiceRejectsInvalidRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()

	if err := svc.SendMessage(context.Background(), "not-a-number", "hello"); err == nil {
		t.Fatal("expected error for recipient with no digits")
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	svc.Stop()

	if err := svc.SendMessage(context.Background(), "919876543210", "hello"); err != ErrServiceStopped {
		t.Fatalf("error = %v, want ErrServiceStopped", err)
	}
}

func TestTwilioWebhookEmitsInbound(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()

	form := url.Values{}
	form.Set("From", "whatsapp:+919876543210")
	form.Set("Body", "maid didn't come today")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/twilio/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case msg := <-svc.Inbound():
		if msg.From != "whatsapp:+919876543210" {
			t.Errorf("inbound from = %q", msg.From)
		}
		if msg.Body != "maid didn't come today" {
			t.Errorf("inbound body = %q", msg.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message emitted")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	defer svc.Stop()

	form := url.Values{}
	form.Set("From", "whatsapp:+919876543210")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/twilio/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
