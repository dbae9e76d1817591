package model

import (
	"time"
)

// MaxMessageLength is the content limit of a direct message, in code points.
const MaxMessageLength = 2000

// DirectMessage is one message between two users.
type DirectMessage struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender"`
	RecipientID    string    `json:"recipient"`
	Content        string    `json:"content"`
	ReplyToID      *string   `json:"reply_to,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}

// SendDirectMessageRequest is the REST body for sending a direct message.
type SendDirectMessageRequest struct {
	Content     string  `json:"content"`
	RecipientID string  `json:"recipientId"`
	ReplyTo     *string `json:"replyTo,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []DirectMessage `json:"messages"`
	HasMore  bool            `json:"has_more"`
}

// RelayCommunityMessageRequest carries an already persisted community
// message that should be fanned out to the community room.
type RelayCommunityMessageRequest struct {
	Message any `json:"message"`
}
