package domain

import "time"

// Attachment describes a file already hosted on the media CDN. The core never
// touches file bytes; upload happens before send and only the descriptor
// travels with the message.
type Attachment struct {
	URL         string `bson:"url" json:"url"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	ContentType string `bson:"content_type,omitempty" json:"content_type,omitempty"`
	Size        int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Message is a single direct message. ID is server-assigned once persisted; a
// provisional client id (see NewProvisionalID callers) fills it until then.
type Message struct {
	ID         string      `bson:"_id,omitempty" json:"id"`
	RoomID     string      `bson:"room_id" json:"room_id"`
	SenderID   string      `bson:"sender_id" json:"sender_id"`
	Body       string      `bson:"body,omitempty" json:"body,omitempty"`
	Attachment *Attachment `bson:"attachment,omitempty" json:"attachment,omitempty"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
	ClientSeq  int64       `bson:"client_seq,omitempty" json:"client_seq,omitempty"`
}

// Empty reports whether the message carries neither text nor an attachment.
func (m *Message) Empty() bool {
	return m.Body == "" && m.Attachment == nil
}

// Before orders messages by (CreatedAt, ClientSeq). This is the display order
// of a conversation timeline.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ClientSeq < other.ClientSeq
}
