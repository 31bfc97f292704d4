package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BolKhata/BolKhata/internal/engine"
	"github.com/BolKhata/BolKhata/internal/models"
)

// DefaultHandleTimeout bounds how long a single utterance may take end to end,
// oracle call and store writes included.
const DefaultHandleTimeout = 30 * time.Second

// RetryableErrorMessage is sent when a failure is transient and the user can
// simply repeat the message.
const RetryableErrorMessage = "Sorry, I couldn't save that just now. Please send it again in a little while."

// HardErrorMessage is sent for failures the user cannot fix by retrying.
const HardErrorMessage = "Sorry, something went wrong on my side. Please try again later."

// Conversation is the engine surface the router drives. Satisfied by
// engine.Coordinator.
type Conversation interface {
	HandleUtterance(ctx context.Context, userID, text string) (*models.EngineResult, error)
}

// UtteranceRouter connects a delivery channel to the conversation engine:
// every inbound message becomes a HandleUtterance call, and the engine's
// response goes back out on the same channel. The sender's canonical phone
// number doubles as the user ID.
type UtteranceRouter struct {
	service       Service
	convo         Conversation
	handleTimeout time.Duration
}

// RouterOption defines a configuration option for the utterance router.
type RouterOption func(*UtteranceRouter)

// WithHandleTimeout overrides the per-utterance processing timeout.
func WithHandleTimeout(d time.Duration) RouterOption {
	return func(r *UtteranceRouter) { r.handleTimeout = d }
}

// NewUtteranceRouter creates a router over the given channel and engine.
func NewUtteranceRouter(service Service, convo Conversation, opts ...RouterOption) *UtteranceRouter {
	r := &UtteranceRouter{service: service, convo: convo, handleTimeout: DefaultHandleTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start consumes the channel's inbound stream until the context is cancelled
// or the stream closes. Each message is handled on its own goroutine; the
// engine serializes per user internally, so concurrent messages from
// different users never block each other.
func (r *UtteranceRouter) Start(ctx context.Context) {
	go func() {
		slog.Info("UtteranceRouter.Start: consuming inbound messages")
		for {
			select {
			case <-ctx.Done():
				slog.Info("UtteranceRouter.Start: stopping, context cancelled")
				return
			case msg, ok := <-r.service.Inbound():
				if !ok {
					slog.Info("UtteranceRouter.Start: inbound channel closed")
					return
				}
				go r.handle(ctx, msg)
			}
		}
	}()
}

// handle processes one inbound message and sends the reply.
func (r *UtteranceRouter) handle(ctx context.Context, msg models.InboundMessage) {
	userID, err := r.service.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("UtteranceRouter.handle: sender validation failed, dropping message", "from", msg.From, "error", err)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, r.handleTimeout)
	defer cancel()

	result, err := r.convo.HandleUtterance(hctx, userID, msg.Body)
	reply := ""
	switch {
	case err == nil:
		reply = result.ResponseText
	case engine.IsRecoverable(err):
		slog.Warn("UtteranceRouter.handle: recoverable engine failure", "userID", userID, "error", err)
		reply = RetryableErrorMessage
	default:
		slog.Error("UtteranceRouter.handle: engine failure", "userID", userID, "error", err)
		reply = HardErrorMessage
	}
	if reply == "" {
		return
	}

	if err := r.service.SendMessage(hctx, userID, reply); err != nil {
		slog.Error("UtteranceRouter.handle: reply send failed", "userID", userID, "error", err)
	}
}
