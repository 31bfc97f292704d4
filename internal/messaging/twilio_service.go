package messaging

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"context"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/twiliowhatsapp"
)

// TwilioService implements Service over Twilio-hosted WhatsApp. Outbound
// messages go through the Twilio REST API; inbound messages arrive on an HTTP
// webhook that the API server mounts.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	receipt chan models.Receipt
	inbound chan models.InboundMessage
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService over the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:  client,
		receipt: make(chan models.Receipt, DefaultChannelBufferSize),
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient reduces a WhatsApp phone number to digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	if canonical != recipient {
		slog.Debug("TwilioService.ValidateAndCanonicalizeRecipient: canonicalized", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound traffic arrives via the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the event channels after a short drain window.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipt)
		close(s.inbound)
	}()
	return nil
}

// SendMessage sends a message via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: recipient validation failed", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel of sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipt
}

// Inbound returns the channel of incoming user messages.
func (s *TwilioService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// WebhookHandler handles inbound Twilio webhook requests. It parses the
// form-encoded message and emits it on the Inbound channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService.WebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("TwilioService.WebhookHandler: inbound message", "from", from, "body_length", len(body))
	s.safeEmitInbound(models.InboundMessage{From: from, Body: body, Time: time.Now().Unix()})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case s.receipt <- receipt:
	case <-time.After(DefaultChannelTimeout):
	}
}

func (s *TwilioService) safeEmitInbound(msg models.InboundMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService.safeEmitInbound: dropping message, service stopped", "from", msg.From)
		return
	}
	select {
	case s.inbound <- msg:
		slog.Debug("TwilioService.safeEmitInbound: message emitted", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService.safeEmitInbound: channel blocked, dropping message", "from", msg.From)
	}
}
