package feed

import (
	"spacechat/backend/internal/models"
	"strings"
)

const (
	deletedUserName = "[Deleted User]"
	groupChatLabel  = "Group Chat"
)

// ChatParticipants flattens the room memberships into participant view-models.
// Memberships whose user account is gone get the deleted-user placeholder.
func ChatParticipants(room *models.ChatRoom) []models.ChatParticipant {
	if room == nil {
		return nil
	}
	participants := make([]models.ChatParticipant, 0, len(room.Memberships))
	for _, m := range room.Memberships {
		p := models.ChatParticipant{
			ID:                  m.ID,
			ProfileID:           m.ProfileID,
			FullName:            deletedUserName,
			FirstName:           deletedUserName,
			UserType:            models.UserTypeUser,
			LatestReadMessageID: m.LatestReadChatMessageID,
		}
		if m.Profile != nil {
			p.Headline = m.Profile.Headline
			p.ProfileImage = m.Profile.ProfileImage
			if u := m.Profile.User; u != nil {
				p.FullName = u.FullName
				p.FirstName = u.FirstName
				p.LastName = u.LastName
				if u.Type != "" {
					p.UserType = u.Type
				}
			}
		}
		participants = append(participants, p)
	}
	return participants
}

// otherHumans returns the participants that are neither the viewer nor a bot.
func otherHumans(participants []models.ChatParticipant, me int64) []models.ChatParticipant {
	var others []models.ChatParticipant
	for _, p := range participants {
		if p.ProfileID == me || p.UserType == models.UserTypeBot {
			continue
		}
		others = append(others, p)
	}
	return others
}

// ChatRoomTitle joins the full names of every other human participant.
func ChatRoomTitle(participants []models.ChatParticipant, me int64) string {
	others := otherHumans(participants, me)
	names := make([]string, 0, len(others))
	for _, p := range others {
		names = append(names, p.FullName)
	}
	return strings.Join(names, ", ")
}

// ChatRoomSubtitle is empty for intro rooms, the other person's headline in a
// one-to-one room, and "Group Chat" otherwise.
func ChatRoomSubtitle(room *models.ChatRoom, participants []models.ChatParticipant, me int64) string {
	if room.IsIntro() {
		return ""
	}
	others := otherHumans(participants, me)
	if len(others) == 1 {
		if others[0].Headline == nil {
			return ""
		}
		return *others[0].Headline
	}
	return groupChatLabel
}

// MyMembership returns the viewer's membership in room, or nil.
func MyMembership(room *models.ChatRoom, me int64) *models.ProfileToChatRoom {
	if room == nil {
		return nil
	}
	for i := range room.Memberships {
		if room.Memberships[i].ProfileID == me {
			return &room.Memberships[i]
		}
	}
	return nil
}

// ShouldHighlightChatRoom reports whether room has an unread message for me.
// The open room is never highlighted, nor is a room without a latest message
// or without my membership.
func ShouldHighlightChatRoom(room *models.ChatRoom, openRoomID int64, me int64) bool {
	if room == nil || room.ID == openRoomID {
		return false
	}
	latest := room.LatestChatMessage
	if latest == nil || latest.SentBy(me) {
		return false
	}
	latestID, ok := latest.ID.ServerID()
	if !ok {
		return false
	}
	membership := MyMembership(room, me)
	if membership == nil {
		return false
	}
	if membership.LatestReadChatMessageID != nil && latestID <= *membership.LatestReadChatMessageID {
		return false
	}
	return true
}
