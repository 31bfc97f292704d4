package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
	"github.com/BolKhata/BolKhata/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp
// client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client
	receipt  chan models.Receipt
	inbound  chan models.InboundMessage
	done     chan struct{}
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
// When the sender is a full *whatsapp.Client, inbound events are wired up;
// with an interface-only sender (mocks) the inbound channel stays silent.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		client:  client,
		receipt: make(chan models.Receipt, DefaultChannelBufferSize),
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	}
	return s
}

// ValidateAndCanonicalizeRecipient reduces a WhatsApp phone number to digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	return canonical, nil
}

// Start registers the whatsmeow event handler when a full client is present.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService.Start: no full client, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	return nil
}

// Stop stops background processing and closes the event channels.
func (s *WhatsAppService) Stop() error {
	close(s.done)
	close(s.receipt)
	close(s.inbound)
	slog.Info("WhatsAppService.Stop: stopped and channels closed")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: recipient validation failed", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipt
}

// Inbound returns the channel of incoming user messages.
func (s *WhatsAppService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}

// handleEvents routes whatsmeow events into the service channels until the
// context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService.handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	slog.Debug("WhatsAppService.handleEvents: event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService.handleEvents: stopping, context cancelled")
}

// handleIncomingMessage forwards incoming text messages as utterances.
// Non-text content (images, audio before transcription) is skipped.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var text string
	if evt.Message.Conversation != nil {
		text = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		text = *evt.Message.ExtendedTextMessage.Text
	} else {
		slog.Debug("WhatsAppService.handleIncomingMessage: ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	msg := models.InboundMessage{
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}
	select {
	case s.inbound <- msg:
		slog.Info("WhatsAppService.handleIncomingMessage: message forwarded", "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.handleIncomingMessage: inbound channel blocked, dropping message", "from", msg.From)
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}

	receipt := models.Receipt{
		To:     evt.MessageSource.Sender.User,
		Status: status,
		Time:   evt.Timestamp.Unix(),
	}
	s.emitReceipt(receipt)
}

func (s *WhatsAppService) emitReceipt(receipt models.Receipt) {
	select {
	case s.receipt <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.emitReceipt: receipt channel blocked, dropping receipt", "to", receipt.To)
	}
}
