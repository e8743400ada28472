package domain

// Event names exchanged over the real-time channel. Clients emit the first
// group; the relay fans the second group out to room members.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStatus      = "message_status"
	EventReaction    = "reaction"

	EventReceiveMessage = "receive_message"
)

type JoinRoomEvent struct {
	RoomID string `json:"room_id"`
}

type TypingEvent struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
}

type StatusEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id,omitempty"`
	Status    Status `json:"status"`
}

// ReactionEvent upserts or clears a reaction. A nil Reaction clears the
// (message, user) entry.
type ReactionEvent struct {
	MessageID string  `json:"message_id"`
	RoomID    string  `json:"room_id,omitempty"`
	UserID    string  `json:"user_id"`
	Reaction  *string `json:"reaction"`
}
