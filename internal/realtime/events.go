package realtime

// StaffRoom is the reserved room every staff connection joins via
// staff_join. Conversation rooms use the conversation uuid as room id.
const StaffRoom = "staff"

type Event string

// Client -> server.
const (
	EventStaffJoin         Event = "staff_join"
	EventStartConversation Event = "start_conversation"
	EventVisitorMessage    Event = "visitor_message"
	EventStaffMessage      Event = "staff_message"
	EventEndConversation   Event = "end_conversation"
)

// Server -> client.
const (
	EventConversationStarted Event = "conversation_started"
	EventNewConversation     Event = "new_conversation"
	EventNewMessage          Event = "new_message"
	EventConversationEnded   Event = "conversation_ended"
	EventError               Event = "error"
)

// Envelope is the wire frame for both directions: an event name plus a
// JSON payload.
type Envelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}
