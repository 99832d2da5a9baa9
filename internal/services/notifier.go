package services

import (
	"github.com/google/uuid"

	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/types"
)

// SupportNotifier translates chat outcomes into the server->client events
// of the support protocol. Room fan-out goes through the hub; the
// conversation_started confirmation and error frames go to a single
// connection only.
type SupportNotifier interface {
	ConversationStarted(c *realtime.Client, conversationID uuid.UUID, greeting string)
	NewConversation(conv *types.Conversation)
	NewMessage(roomID string, conversationID uuid.UUID, msg *types.Message)
	ConversationEnded(roomID string, conversationID uuid.UUID, notice string)
	Error(c *realtime.Client, reason string)
}

type supportNotifier struct {
	hub *realtime.Hub
}

func NewSupportNotifier(hub *realtime.Hub) SupportNotifier {
	return &supportNotifier{hub: hub}
}

func (n *supportNotifier) ConversationStarted(c *realtime.Client, conversationID uuid.UUID, greeting string) {
	if n == nil || c == nil {
		return
	}
	c.Send(realtime.Envelope{
		Event: realtime.EventConversationStarted,
		Data:  map[string]any{"conversationId": conversationID, "greeting": greeting},
	})
}

func (n *supportNotifier) NewConversation(conv *types.Conversation) {
	if n == nil || conv == nil {
		return
	}
	n.hub.Broadcast(realtime.StaffRoom, realtime.Envelope{
		Event: realtime.EventNewConversation,
		Data:  map[string]any{"conversation": conv},
	})
}

func (n *supportNotifier) NewMessage(roomID string, conversationID uuid.UUID, msg *types.Message) {
	if n == nil || msg == nil {
		return
	}
	n.hub.Broadcast(roomID, realtime.Envelope{
		Event: realtime.EventNewMessage,
		Data:  map[string]any{"conversationId": conversationID, "message": msg},
	})
}

func (n *supportNotifier) ConversationEnded(roomID string, conversationID uuid.UUID, notice string) {
	if n == nil {
		return
	}
	n.hub.Broadcast(roomID, realtime.Envelope{
		Event: realtime.EventConversationEnded,
		Data:  map[string]any{"conversationId": conversationID, "notice": notice},
	})
}

func (n *supportNotifier) Error(c *realtime.Client, reason string) {
	if n == nil || c == nil {
		return
	}
	c.Send(realtime.Envelope{
		Event: realtime.EventError,
		Data:  map[string]any{"reason": reason},
	})
}
