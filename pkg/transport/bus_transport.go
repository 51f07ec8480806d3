package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// BusTransport publishes session requests for an agent on the other side of
// the bus. It implements session.Transport.
type BusTransport struct {
	sessionID string
	pub       message.Publisher
}

func NewBusTransport(sessionID string, pub message.Publisher) *BusTransport {
	return &BusTransport{sessionID: sessionID, pub: pub}
}

func (t *BusTransport) Connect(ctx context.Context, attemptID string) error {
	return t.publish(ctx, Envelope{Type: TypeConnect, AttemptID: attemptID})
}

func (t *BusTransport) Leave(ctx context.Context, attemptID string) error {
	return t.publish(ctx, Envelope{Type: TypeLeave, AttemptID: attemptID})
}

func (t *BusTransport) SendChat(ctx context.Context, attemptID string, text string) error {
	return t.publish(ctx, Envelope{Type: TypeSendChat, AttemptID: attemptID, Text: text})
}

func (t *BusTransport) publish(ctx context.Context, e Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.SessionID = t.sessionID
	return Publish(t.pub, RequestsTopic(t.sessionID), e)
}
