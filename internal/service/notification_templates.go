package service

import (
	"fmt"
	"time"

	"github.com/campus-social/realtime-gateway/internal/model"
)

// Typed builders for the notification kinds the platform emits. Each fixes
// the type, title, message, priority and action URL; pass the result to
// CreateNotification.

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func displayName(name string) string {
	if name == "" {
		return "Someone"
	}
	return name
}

// PostLikeNotification tells an author their post was liked.
func PostLikeNotification(recipientID, actorID, actorName, postID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationPostLike,
		Title:       "New like",
		Message:     fmt.Sprintf("%s liked your post", displayName(actorName)),
		ActionURL:   "/posts/" + postID,
		Priority:    model.PriorityLow,
		PostID:      strPtr(postID),
		UserID:      strPtr(actorID),
	}
}

// PostCommentNotification tells an author someone commented on their post.
func PostCommentNotification(recipientID, actorID, actorName, postID, commentID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationPostComment,
		Title:       "New comment",
		Message:     fmt.Sprintf("%s commented on your post", displayName(actorName)),
		ActionURL:   fmt.Sprintf("/posts/%s#comment-%s", postID, commentID),
		Priority:    model.PriorityMedium,
		PostID:      strPtr(postID),
		CommentID:   strPtr(commentID),
		UserID:      strPtr(actorID),
	}
}

// PostShareNotification tells an author their post was shared.
func PostShareNotification(recipientID, actorID, actorName, postID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationPostShare,
		Title:       "Post shared",
		Message:     fmt.Sprintf("%s shared your post", displayName(actorName)),
		ActionURL:   "/posts/" + postID,
		Priority:    model.PriorityLow,
		PostID:      strPtr(postID),
		UserID:      strPtr(actorID),
	}
}

// CommentReplyNotification tells a commenter someone replied to them.
func CommentReplyNotification(recipientID, actorID, actorName, postID, commentID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationCommentReply,
		Title:       "New reply",
		Message:     fmt.Sprintf("%s replied to your comment", displayName(actorName)),
		ActionURL:   fmt.Sprintf("/posts/%s#comment-%s", postID, commentID),
		Priority:    model.PriorityMedium,
		PostID:      strPtr(postID),
		CommentID:   strPtr(commentID),
		UserID:      strPtr(actorID),
	}
}

// FollowNotification tells a user they have a new follower.
func FollowNotification(recipientID, actorID, actorName string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationFollow,
		Title:       "New follower",
		Message:     fmt.Sprintf("%s started following you", displayName(actorName)),
		ActionURL:   "/profile/" + actorID,
		Priority:    model.PriorityLow,
		UserID:      strPtr(actorID),
	}
}

// MessageNotification tells a user they received a direct message.
func MessageNotification(recipientID, senderID, senderName, conversationID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(senderID),
		Type:        model.NotificationMessage,
		Title:       "New message",
		Message:     fmt.Sprintf("%s sent you a message", displayName(senderName)),
		ActionURL:   "/messages/" + conversationID,
		Priority:    model.PriorityMedium,
		UserID:      strPtr(senderID),
		Metadata:    map[string]any{"conversationId": conversationID},
	}
}

// CommunityJoinNotification tells a community owner someone joined.
func CommunityJoinNotification(recipientID, actorID, actorName, communityID, communityName string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationCommunityJoin,
		Title:       "New member",
		Message:     fmt.Sprintf("%s joined %s", displayName(actorName), communityName),
		ActionURL:   "/communities/" + communityID,
		Priority:    model.PriorityLow,
		CommunityID: strPtr(communityID),
		UserID:      strPtr(actorID),
	}
}

// CommunityInviteNotification invites a user to a community.
func CommunityInviteNotification(recipientID, inviterID, inviterName, communityID, communityName string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(inviterID),
		Type:        model.NotificationCommunityInvite,
		Title:       "Community invitation",
		Message:     fmt.Sprintf("%s invited you to join %s", displayName(inviterName), communityName),
		ActionURL:   "/communities/" + communityID,
		Priority:    model.PriorityMedium,
		CommunityID: strPtr(communityID),
		UserID:      strPtr(inviterID),
	}
}

// CommunityPostNotification tells a member about a new post in a community.
func CommunityPostNotification(recipientID, actorID, actorName, communityID, communityName, postID string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		SenderID:    strPtr(actorID),
		Type:        model.NotificationCommunityPost,
		Title:       "New post in " + communityName,
		Message:     fmt.Sprintf("%s posted in %s", displayName(actorName), communityName),
		ActionURL:   "/posts/" + postID,
		Priority:    model.PriorityLow,
		PostID:      strPtr(postID),
		CommunityID: strPtr(communityID),
		UserID:      strPtr(actorID),
	}
}

// AdminWarningNotification delivers a moderation warning.
func AdminWarningNotification(recipientID, reason string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		Type:        model.NotificationAdminWarning,
		Title:       "Community guidelines warning",
		Message:     "You received a warning: " + reason,
		ActionURL:   "/settings/account",
		Priority:    model.PriorityHigh,
		Metadata:    map[string]any{"reason": reason},
	}
}

// AdminSuspensionNotification tells a user their account is suspended.
func AdminSuspensionNotification(recipientID, reason string, until time.Time) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		Type:        model.NotificationAdminSuspension,
		Title:       "Account suspended",
		Message:     fmt.Sprintf("Your account is suspended until %s: %s", until.UTC().Format("Jan 2, 2006 15:04 MST"), reason),
		ActionURL:   "/settings/account",
		Priority:    model.PriorityUrgent,
		Metadata: map[string]any{
			"reason": reason,
			"until":  until.UTC().Format(time.RFC3339),
		},
	}
}

// SystemAnnouncementNotification carries a platform-wide announcement.
// Use with CreateBulkNotifications for many recipients.
func SystemAnnouncementNotification(recipientID, title, message, actionURL string) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		Type:        model.NotificationSystemAnnouncement,
		Title:       title,
		Message:     message,
		ActionURL:   actionURL,
		Priority:    model.PriorityHigh,
	}
}

// EventReminderNotification reminds a user of an upcoming campus event.
func EventReminderNotification(recipientID, eventID, eventName string, startsAt time.Time) model.NotificationParams {
	return model.NotificationParams{
		RecipientID: recipientID,
		Type:        model.NotificationEventReminder,
		Title:       "Upcoming event",
		Message:     fmt.Sprintf("%s starts %s", eventName, startsAt.UTC().Format("Mon Jan 2 at 15:04 MST")),
		ActionURL:   "/events/" + eventID,
		Priority:    model.PriorityMedium,
		Metadata: map[string]any{
			"eventId":  eventID,
			"startsAt": startsAt.UTC().Format(time.RFC3339),
		},
	}
}
