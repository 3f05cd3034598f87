package feed

import (
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/models"
	"time"
)

// ShouldTimeBreak reports whether two adjacent messages are far enough apart
// in time to start a new group. A missing neighbour always breaks.
func ShouldTimeBreak(a, b *models.ChatMessage) bool {
	if a == nil || b == nil {
		return true
	}
	gap := a.CreatedAt.Sub(b.CreatedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap > config.GroupingWindow
}

// ShouldBreak reports whether b starts a new visual group after a: either a
// time break or a change of sender.
func ShouldBreak(a, b *models.ChatMessage) bool {
	if ShouldTimeBreak(a, b) {
		return true
	}
	return !sameSender(a.SenderProfileID, b.SenderProfileID)
}

func sameSender(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DeliveredMessageID returns the id of the newest confirmed message sent by
// viewer in a newest-first list. Only that message shows the delivered mark.
func DeliveredMessageID(messages []models.ChatMessage, viewer int64) (int64, bool) {
	for i := range messages {
		if !messages[i].SentBy(viewer) {
			continue
		}
		if id, ok := messages[i].ID.ServerID(); ok {
			return id, true
		}
	}
	return 0, false
}

// ShowDelivered reports whether msg carries the delivered indicator.
func ShowDelivered(msg *models.ChatMessage, messages []models.ChatMessage, viewer int64) bool {
	if msg == nil || !msg.SentBy(viewer) {
		return false
	}
	id, ok := msg.ID.ServerID()
	if !ok {
		return false
	}
	delivered, found := DeliveredMessageID(messages, viewer)
	return found && delivered == id
}

// FormatDateHeader renders the timestamp shown above a time break.
func FormatDateHeader(t, now time.Time) string {
	age := now.Sub(t)
	switch {
	case age < config.TimeOnlyWindow:
		return t.Format("3:04 PM")
	case age < config.WeekdayWindow:
		return t.Format("Monday 3:04 PM")
	default:
		return t.Format("Jan 2, 2006 3:04 PM")
	}
}

// Group is a run of consecutive messages rendered together, newest first.
type Group struct {
	Messages []models.ChatMessage
	// TimeBreak is set when the group is preceded by a date header.
	TimeBreak bool
}

// GroupMessages splits a newest-first list into render groups.
func GroupMessages(messages []models.ChatMessage) []Group {
	var groups []Group
	for i := range messages {
		var newer *models.ChatMessage
		if i > 0 {
			newer = &messages[i-1]
		}
		if newer == nil || ShouldBreak(newer, &messages[i]) {
			groups = append(groups, Group{})
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, messages[i])
	}
	// A group shows a date header when its oldest message is separated in
	// time from the next older message.
	for gi := range groups {
		oldest := &groups[gi].Messages[len(groups[gi].Messages)-1]
		var older *models.ChatMessage
		if gi+1 < len(groups) {
			older = &groups[gi+1].Messages[0]
		}
		groups[gi].TimeBreak = ShouldTimeBreak(oldest, older)
	}
	return groups
}

// RenderGroups turns a newest-first list into the groups a renderer draws,
// with date headers and the delivered mark resolved.
func RenderGroups(messages []models.ChatMessage, viewer int64, now time.Time) []models.MessageGroup {
	groups := GroupMessages(messages)
	out := make([]models.MessageGroup, 0, len(groups))
	delivered := false
	for _, g := range groups {
		oldest := g.Messages[len(g.Messages)-1]
		rg := models.MessageGroup{
			MessageIDs:      make([]models.MessageID, 0, len(g.Messages)),
			SenderProfileID: g.Messages[0].SenderProfileID,
		}
		if g.TimeBreak {
			rg.Header = FormatDateHeader(oldest.CreatedAt, now)
		}
		for i := range g.Messages {
			rg.MessageIDs = append(rg.MessageIDs, g.Messages[i].ID)
			if !delivered && ShowDelivered(&g.Messages[i], messages, viewer) {
				rg.Delivered = true
				delivered = true
			}
		}
		out = append(out, rg)
	}
	return out
}
