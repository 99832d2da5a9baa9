package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/repos"
	"github.com/livedesk/backend/internal/types"
)

const (
	defaultGreeting = "Sohbet başlatıldı. Temsilcimiz en kısa sürede size yardımcı olacak."
	endNotice       = "Sohbet sonlandırıldı"
	reasonStartFail = "Sohbet başlatılamadı"
	reasonSendFail  = "Mesaj gönderilemedi"
	reasonEndFail   = "Sohbet sonlandırılamadı"
)

// SessionRouter dispatches inbound protocol events for live connections.
// Every handler starts with a capability check on the closed role enum;
// events from the wrong role are dropped silently so guests learn nothing
// about role gates. Store failures surface as an error frame to the
// initiating connection only.
type SessionRouter struct {
	log           *logger.Logger
	hub           *realtime.Hub
	conversations ConversationService
	notifier      SupportNotifier
	greeting      string

	mu       sync.Mutex
	presence map[uuid.UUID]uuid.UUID // clientID -> staff subject id
}

func NewSessionRouter(
	log *logger.Logger,
	hub *realtime.Hub,
	conversations ConversationService,
	notifier SupportNotifier,
	greeting string,
) *SessionRouter {
	routerLog := log.With("component", "SessionRouter")
	if greeting == "" {
		greeting = defaultGreeting
	}
	return &SessionRouter{
		log:           routerLog,
		hub:           hub,
		conversations: conversations,
		notifier:      notifier,
		greeting:      greeting,
		presence:      make(map[uuid.UUID]uuid.UUID),
	}
}

type startConversationPayload struct {
	Name       string           `json:"name"`
	Email      string           `json:"email,omitempty"`
	ClientMeta types.ClientMeta `json:"clientMeta,omitempty"`
}

type chatMessagePayload struct {
	ConversationID uuid.UUID          `json:"conversationId"`
	MessageID      *uuid.UUID         `json:"messageId,omitempty"`
	Text           string             `json:"text"`
	Attachments    []types.Attachment `json:"attachments,omitempty"`
}

type endConversationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

// HandleEvent routes one inbound frame. Unknown events and undecodable
// payloads are dropped.
func (sr *SessionRouter) HandleEvent(ctx context.Context, client *realtime.Client, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventStaffJoin:
		sr.handleStaffJoin(client)
	case realtime.EventStartConversation:
		var p startConversationPayload
		if !decodePayload(env.Data, &p) {
			return
		}
		sr.handleStartConversation(ctx, client, p)
	case realtime.EventVisitorMessage:
		var p chatMessagePayload
		if !decodePayload(env.Data, &p) {
			return
		}
		sr.handleVisitorMessage(ctx, client, p)
	case realtime.EventStaffMessage:
		var p chatMessagePayload
		if !decodePayload(env.Data, &p) {
			return
		}
		sr.handleStaffMessage(ctx, client, p)
	case realtime.EventEndConversation:
		var p endConversationPayload
		if !decodePayload(env.Data, &p) {
			return
		}
		sr.handleEndConversation(ctx, client, p)
	default:
		sr.log.Debug("Ignoring unknown event", "event", env.Event, "clientID", client.ID)
	}
}

func (sr *SessionRouter) handleStaffJoin(client *realtime.Client) {
	if !client.Role.IsStaff() {
		return
	}
	sr.hub.Join(realtime.StaffRoom, client)
	sr.mu.Lock()
	sr.presence[client.ID] = client.SubjectID
	sr.mu.Unlock()
	sr.log.Info("Staff joined", "clientID", client.ID, "staff_id", client.SubjectID)
}

func (sr *SessionRouter) handleStartConversation(ctx context.Context, client *realtime.Client, p startConversationPayload) {
	if client.Role.IsStaff() {
		return
	}

	input := StartInput{
		VisitorConnRef: client.ID.String(),
		DisplayName:    p.Name,
		ContactEmail:   p.Email,
		ClientMeta:     p.ClientMeta,
	}
	if client.Role == types.RoleVisitor && client.SubjectID != uuid.Nil {
		owner := client.SubjectID
		input.OwnerUserID = &owner
	}

	conv, err := sr.conversations.Start(ctx, input)
	if err != nil {
		sr.log.Error("start_conversation failed", "clientID", client.ID, "error", err)
		sr.notifier.Error(client, reasonStartFail)
		return
	}

	// Join before announcing so no message can race ahead of membership.
	sr.hub.Join(conv.ID.String(), client)
	sr.notifier.ConversationStarted(client, conv.ID, sr.greeting)
	sr.notifier.NewConversation(conv)
}

func (sr *SessionRouter) handleVisitorMessage(ctx context.Context, client *realtime.Client, p chatMessagePayload) {
	if client.Role.IsStaff() {
		return
	}
	if !sr.hub.InRoom(p.ConversationID.String(), client) {
		return
	}

	input := AppendInput{
		MessageID:   p.MessageID,
		SenderKind:  types.SenderVisitor,
		Content:     p.Text,
		Attachments: p.Attachments,
	}
	if client.Role == types.RoleVisitor && client.SubjectID != uuid.Nil {
		sender := client.SubjectID
		input.SenderID = &sender
	}

	msg, err := sr.conversations.Append(ctx, p.ConversationID, input)
	if err != nil {
		sr.log.Warn("visitor_message rejected", "clientID", client.ID, "conversationID", p.ConversationID, "error", err)
		sr.notifier.Error(client, reasonSendFail)
		return
	}

	sr.notifier.NewMessage(realtime.StaffRoom, p.ConversationID, msg)
}

func (sr *SessionRouter) handleStaffMessage(ctx context.Context, client *realtime.Client, p chatMessagePayload) {
	if !client.Role.IsStaff() {
		return
	}

	sender := client.SubjectID
	msg, err := sr.conversations.Append(ctx, p.ConversationID, AppendInput{
		MessageID:   p.MessageID,
		SenderKind:  types.SenderStaff,
		SenderID:    &sender,
		Content:     p.Text,
		Attachments: p.Attachments,
	})
	if err != nil {
		sr.log.Warn("staff_message rejected", "clientID", client.ID, "conversationID", p.ConversationID, "error", err)
		sr.notifier.Error(client, reasonSendFail)
		return
	}

	// Echo to the staff room as well so every agent sees the send.
	sr.notifier.NewMessage(p.ConversationID.String(), p.ConversationID, msg)
	sr.notifier.NewMessage(realtime.StaffRoom, p.ConversationID, msg)
}

func (sr *SessionRouter) handleEndConversation(ctx context.Context, client *realtime.Client, p endConversationPayload) {
	roomID := p.ConversationID.String()
	if !client.Role.IsStaff() && !sr.hub.InRoom(roomID, client) {
		return
	}

	_, err := sr.conversations.SetStatus(ctx, p.ConversationID, types.StatusClosed)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, repos.ErrNotFound) {
			sr.log.Debug("end_conversation ignored", "conversationID", p.ConversationID, "error", err)
		} else {
			sr.log.Warn("end_conversation failed", "conversationID", p.ConversationID, "error", err)
		}
		sr.notifier.Error(client, reasonEndFail)
		return
	}

	sr.notifier.ConversationEnded(roomID, p.ConversationID, endNotice)
	sr.notifier.ConversationEnded(realtime.StaffRoom, p.ConversationID, endNotice)
	sr.hub.ClearRoom(roomID)
}

// Disconnect runs the unconditional cleanup for a closed connection.
func (sr *SessionRouter) Disconnect(client *realtime.Client) {
	sr.hub.DropClient(client)
	sr.mu.Lock()
	delete(sr.presence, client.ID)
	sr.mu.Unlock()
	sr.log.Debug("Connection cleaned up", "clientID", client.ID)
}

// StaffOnline reports distinct staff members with a live staff_join.
func (sr *SessionRouter) StaffOnline() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	distinct := make(map[uuid.UUID]bool, len(sr.presence))
	for _, staffID := range sr.presence {
		distinct[staffID] = true
	}
	return len(distinct)
}

func decodePayload(data any, dst any) bool {
	if data == nil {
		return false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
