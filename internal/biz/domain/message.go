package domain

import "time"

// Message is a candidate message read from a source conversation.
// Text and GroupID are optional: media-only messages carry no text and
// only media-group members carry a group id. Use HasText/HasGroup before
// reading them.
type Message struct {
	ID        string
	SourceID  string
	Text      string
	GroupID   string
	MsgType   string // text, post, image, file, ...
	CreatedAt time.Time

	hasText bool
}

// NewTextMessage builds a message that carries text (possibly empty after parsing).
func NewTextMessage(sourceID, id, text string, createdAt time.Time) Message {
	return Message{ID: id, SourceID: sourceID, Text: text, CreatedAt: createdAt, hasText: true}
}

// NewMediaMessage builds a message without text.
func NewMediaMessage(sourceID, id string, createdAt time.Time) Message {
	return Message{ID: id, SourceID: sourceID, CreatedAt: createdAt}
}

// WithGroup returns a copy of the message that belongs to media group groupID.
func (m Message) WithGroup(groupID string) Message {
	m.GroupID = groupID
	return m
}

// HasText reports whether the message carries non-blank text.
func (m *Message) HasText() bool {
	return m.hasText && Normalize(m.Text) != ""
}

// HasGroup reports whether the message belongs to a media group.
func (m *Message) HasGroup() bool {
	return m.GroupID != ""
}

// IsAfter checks if the message is after the specified time
func (m *Message) IsAfter(t time.Time) bool {
	return m.CreatedAt.After(t)
}

// IsBefore checks if the message is before the specified time
func (m *Message) IsBefore(t time.Time) bool {
	return m.CreatedAt.Before(t)
}

// MessageIDs returns the ids of msgs in order.
func MessageIDs(msgs []Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
