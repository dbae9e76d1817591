// Package model defines data structures for the campus real-time gateway.
package model

import (
	"time"
)

// User is the slice of the platform's user record this service reads.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Conversation is the durable two-party aggregate.
// Participants is canonically sorted.
type Conversation struct {
	ID            string          `json:"id"`
	Participants  [2]string       `json:"participants"`
	LastMessageID string          `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	UnreadCount   map[string]int  `json:"unread_count"`
	Archived      map[string]bool `json:"archived"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// CanonicalPair orders two user ids so the pair has a stable identity.
func CanonicalPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// MarkReadRequest is the body of the explicit read action.
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds,omitempty"`
}
